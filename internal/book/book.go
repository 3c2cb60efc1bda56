// Package book implements the resting-order side of the market: two ordered
// collections keyed by (price, sequence) in strict price-time priority.
package book

import (
	"errors"

	"github.com/tidwall/btree"

	"matchbook/internal/common"
)

var (
	// ErrFull means the side has hit its resting-order cap.
	ErrFull = errors.New("book side full")
	// ErrDuplicateOrder means an order with the same id already rests.
	ErrDuplicateOrder = errors.New("duplicate order id")
	// ErrNotResting means the order is not Open or PartiallyFilled.
	ErrNotResting = errors.New("order not in a resting state")
)

// bidLess sorts bids best-first: highest price, then earliest sequence.
func bidLess(a, b *common.Order) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Seq < b.Seq
}

// askLess sorts asks best-first: lowest price, then earliest sequence.
func askLess(a, b *common.Order) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Seq < b.Seq
}

// Book holds both sides of one market. Every order present is Open or
// PartiallyFilled; the matching engine removes orders as they terminate.
// The book itself is not goroutine safe: the host serializes access per
// market.
type Book struct {
	bids *btree.BTreeG[*common.Order]
	asks *btree.BTreeG[*common.Order]

	// Order id -> resting order, for O(1) cancellation lookups.
	index map[uint64]*common.Order

	// Cap on resting orders per side. Zero means unbounded.
	maxPerSide int
}

func New(maxPerSide int) *Book {
	return &Book{
		bids:       btree.NewBTreeG(bidLess),
		asks:       btree.NewBTreeG(askLess),
		index:      make(map[uint64]*common.Order),
		maxPerSide: maxPerSide,
	}
}

func (b *Book) tree(side common.Side) *btree.BTreeG[*common.Order] {
	if side == common.Bid {
		return b.bids
	}
	return b.asks
}

// Insert places a resting order into its side. The caller has already
// validated market state and quantization; the book only enforces its own
// structural invariants.
func (b *Book) Insert(o *common.Order) error {
	if o.Status != common.Open && o.Status != common.PartiallyFilled {
		return ErrNotResting
	}
	if _, ok := b.index[o.ID]; ok {
		return ErrDuplicateOrder
	}
	tr := b.tree(o.Side)
	if b.maxPerSide > 0 && tr.Len() >= b.maxPerSide {
		return ErrFull
	}
	tr.Set(o)
	b.index[o.ID] = o
	return nil
}

// HasRoom reports whether a side can take one more resting order.
func (b *Book) HasRoom(side common.Side) bool {
	return b.maxPerSide <= 0 || b.tree(side).Len() < b.maxPerSide
}

// Remove takes an order out of the book by id. Returns nil if absent.
func (b *Book) Remove(id uint64) *common.Order {
	o, ok := b.index[id]
	if !ok {
		return nil
	}
	b.tree(o.Side).Delete(o)
	delete(b.index, id)
	return o
}

// Get returns the resting order with the given id, or nil.
func (b *Book) Get(id uint64) *common.Order {
	return b.index[id]
}

// Best peeks at the top of a side without mutating it.
func (b *Book) Best(side common.Side) *common.Order {
	o, ok := b.tree(side).Min()
	if !ok {
		return nil
	}
	return o
}

// PeekCrossed returns the best (bid, ask) pair if they cross
// (bid.Price >= ask.Price), else (nil, nil).
func (b *Book) PeekCrossed() (*common.Order, *common.Order) {
	bid := b.Best(common.Bid)
	ask := b.Best(common.Ask)
	if bid == nil || ask == nil || bid.Price < ask.Price {
		return nil, nil
	}
	return bid, ask
}

// SideLen returns the number of resting orders on a side.
func (b *Book) SideLen(side common.Side) int {
	return b.tree(side).Len()
}

// Len returns the total number of resting orders.
func (b *Book) Len() int {
	return b.bids.Len() + b.asks.Len()
}

// Walk visits a side in priority order (best first) until fn returns false.
func (b *Book) Walk(side common.Side, fn func(*common.Order) bool) {
	b.tree(side).Scan(fn)
}
