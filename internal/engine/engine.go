// Package engine implements the crossing algorithm. Each exported call is
// one atomic step: it either applies completely (book mutated, events
// appended) or fails with book and queue untouched. The engine has no
// internal concurrency; the host serializes calls per market.
package engine

import (
	"errors"
	"fmt"

	"matchbook/internal/book"
	"matchbook/internal/common"
	"matchbook/internal/market"
	"matchbook/internal/num"
	"matchbook/internal/queue"
)

var (
	// ErrPostOnlyWouldCross rejects a post-only order that would have
	// taken liquidity.
	ErrPostOnlyWouldCross = errors.New("post-only order would cross the book")
	// ErrUnfillable rejects a fill-or-kill order the book cannot fill in
	// full.
	ErrUnfillable = errors.New("order cannot be filled in full")
	// ErrInvalidLimit rejects a non-positive match limit.
	ErrInvalidLimit = errors.New("match limit must be positive")
	// ErrInvalidExpiry rejects an order already expired on arrival.
	ErrInvalidExpiry = errors.New("order expiry is in the past")
	// ErrOrderNotFound means no order with that id was ever placed here.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotOwner rejects cancellation by anyone but the order owner.
	ErrNotOwner = errors.New("caller does not own this order")
)

// PlaceParams carries an order intent; Place validates it.
type PlaceParams struct {
	Owner    string
	ClientID uint64
	Side     common.Side
	Type     common.OrderType
	Price    int64
	Quantity int64
	Expiry   int64 // Unix seconds, zero for good-til-cancelled
}

// Result reports the outcome of a placement step.
type Result struct {
	Order       common.Order // Snapshot after the step
	Fills       int          // Fill events emitted
	QuoteVolume int64        // Total quote units traded
}

// Engine owns one market's book and event queue for the duration of each
// step.
type Engine struct {
	market *market.Market
	book   *book.Book
	events *queue.Queue

	// Every order ever placed, resting or terminal, so lifecycle rules can
	// be enforced on orders no longer in the book.
	orders map[uint64]*common.Order

	// Monotonic per-market counter; doubles as order id and time-priority
	// sequence. Rejected requests consume nothing.
	seq uint64
}

func New(m *market.Market, maxOrdersPerSide, queueCapacity int) (*Engine, error) {
	q, err := queue.New(queueCapacity)
	if err != nil {
		return nil, err
	}
	return &Engine{
		market: m,
		book:   book.New(maxOrdersPerSide),
		events: q,
		orders: make(map[uint64]*common.Order),
	}, nil
}

func (e *Engine) Market() *market.Market { return e.market }
func (e *Engine) Book() *book.Book      { return e.book }
func (e *Engine) Events() *queue.Queue  { return e.events }

// Order returns a snapshot of any order ever placed, by id.
func (e *Engine) Order(id uint64) (common.Order, bool) {
	o, ok := e.orders[id]
	if !ok {
		return common.Order{}, false
	}
	return *o, true
}

// plannedOp is one deferred book mutation. Exactly one of evict/maker is
// set: evict removes an expired maker, maker records a fill against it.
type plannedOp struct {
	evict *common.Order
	maker *common.Order
	qty   int64
}

// planCross walks the opposing side best-first and computes, without
// mutating anything, the ops a taker would trigger. Expired makers inside
// the crossing region are planned for eviction; the first maker beyond the
// taker's limit stops the walk untouched.
func (e *Engine) planCross(taker *common.Order, now int64) (ops []plannedOp, filled, quoteVolume int64, err error) {
	remaining := taker.Quantity
	e.book.Walk(taker.Side.Opposite(), func(maker *common.Order) bool {
		if remaining == 0 {
			return false
		}
		if taker.Side == common.Bid && maker.Price > taker.Price {
			return false
		}
		if taker.Side == common.Ask && maker.Price < taker.Price {
			return false
		}
		if maker.ExpiredAt(now) {
			ops = append(ops, plannedOp{evict: maker})
			return true
		}

		qty := num.Min(remaining, maker.Remaining())
		notional, mulErr := num.CheckedMul(maker.Price, qty)
		if mulErr != nil {
			err = mulErr
			return false
		}
		quoteVolume, err = num.CheckedAdd(quoteVolume, notional)
		if err != nil {
			return false
		}
		filled, err = num.CheckedAdd(filled, qty)
		if err != nil {
			return false
		}

		remaining -= qty
		ops = append(ops, plannedOp{maker: maker, qty: qty})
		return true
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("match step: %w", err)
	}
	return ops, filled, quoteVolume, nil
}

// eventsNeeded counts the queue slots a set of planned ops will consume.
func eventsNeeded(ops []plannedOp) int {
	n := 0
	for _, op := range ops {
		if op.evict != nil {
			n++
			continue
		}
		n++ // the fill itself
		if op.maker.Remaining() == op.qty {
			n++ // maker fully consumed, Out{Filled} follows
		}
	}
	return n
}

// evict removes an expired resting order and emits Out{Expired} for it.
// The caller has already reserved the queue slot.
func (e *Engine) evict(o *common.Order) error {
	e.book.Remove(o.ID)
	released := o.Remaining()
	if err := o.TransitionTo(common.Expired); err != nil {
		return err
	}
	return e.events.Push(common.OutEvent(o, common.OutExpired, released))
}

// fill applies one planned fill: quantities move, the Fill event lands, and
// a fully consumed maker leaves the book with Out{Filled}.
func (e *Engine) fill(taker, maker *common.Order, qty int64) error {
	maker.Filled += qty
	taker.Filled += qty
	if err := e.events.Push(common.FillEvent(maker, taker, maker.Price, qty)); err != nil {
		return err
	}
	if maker.Remaining() == 0 {
		e.book.Remove(maker.ID)
		if err := maker.TransitionTo(common.Filled); err != nil {
			return err
		}
		return e.events.Push(common.OutEvent(maker, common.OutFilled, 0))
	}
	return maker.TransitionTo(common.PartiallyFilled)
}

// Place runs the full placement step for a new order: validate, cross
// against the book, then rest, discard, or reject the remainder according
// to the order type.
func (e *Engine) Place(p PlaceParams, now int64) (Result, error) {
	if err := e.market.EnsureActive(); err != nil {
		return Result{}, err
	}
	if err := e.market.ValidateOrder(p.Price, p.Quantity); err != nil {
		return Result{}, err
	}
	if p.Expiry != 0 && p.Expiry <= now {
		return Result{}, ErrInvalidExpiry
	}

	taker := &common.Order{
		ClientID: p.ClientID,
		Owner:    p.Owner,
		Side:     p.Side,
		Type:     p.Type,
		Price:    p.Price,
		Quantity: p.Quantity,
		Expiry:   p.Expiry,
		Status:   common.New,
	}

	ops, filled, quoteVolume, err := e.planCross(taker, now)
	if err != nil {
		return Result{}, err
	}

	// Order-type gates, all before any mutation. A rejected post-only
	// leaves even expired makers alone: nothing was touched.
	if taker.Type == common.PostOnly && filled > 0 {
		return Result{}, ErrPostOnlyWouldCross
	}
	if taker.Type == common.FillOrKill && filled < taker.Quantity {
		return Result{}, ErrUnfillable
	}

	needed := eventsNeeded(ops)
	remaining := taker.Quantity - filled
	willRest := remaining > 0 && taker.Type.CanRest()
	if remaining > 0 && taker.Type == common.ImmediateOrCancel {
		needed++ // Out{Cancelled} for the discarded remainder
	}
	if e.events.Free() < needed {
		return Result{}, queue.ErrFull
	}
	if willRest && !e.book.HasRoom(taker.Side) {
		return Result{}, book.ErrFull
	}

	// Point of no return: everything below is guaranteed to succeed.
	e.seq++
	taker.ID = e.seq
	taker.Seq = e.seq
	e.orders[taker.ID] = taker

	fills := 0
	for _, op := range ops {
		if op.evict != nil {
			if err := e.evict(op.evict); err != nil {
				return Result{}, fmt.Errorf("apply: %w", err)
			}
			continue
		}
		if err := e.fill(taker, op.maker, op.qty); err != nil {
			return Result{}, fmt.Errorf("apply: %w", err)
		}
		fills++
	}

	switch {
	case taker.Remaining() == 0:
		err = taker.TransitionTo(common.Filled)
	case willRest:
		next := common.Open
		if taker.Filled > 0 {
			next = common.PartiallyFilled
		}
		if err = taker.TransitionTo(next); err == nil {
			err = e.book.Insert(taker)
		}
	default: // immediate-or-cancel remainder, zero-fill included
		released := taker.Remaining()
		if err = taker.TransitionTo(common.Cancelled); err == nil {
			err = e.events.Push(common.OutEvent(taker, common.OutCancelled, released))
		}
	}
	if err != nil {
		// Unreachable by construction; a failure here is a core bug, not
		// a recoverable request error.
		return Result{}, fmt.Errorf("apply: %w", err)
	}

	return Result{Order: *taker, Fills: fills, QuoteVolume: quoteVolume}, nil
}

// Cancel removes a resting order. Only the owner may cancel. An expired
// order touched by cancellation is evicted as Expired, not Cancelled.
func (e *Engine) Cancel(orderID uint64, owner string, now int64) (common.Order, error) {
	o, ok := e.orders[orderID]
	if !ok {
		return common.Order{}, ErrOrderNotFound
	}
	if o.Owner != owner {
		return common.Order{}, ErrNotOwner
	}
	if o.Status.Terminal() {
		return common.Order{}, fmt.Errorf("%w: %v -> %v (order %d)",
			common.ErrInvalidTransition, o.Status, common.Cancelled, o.ID)
	}
	if e.events.Free() < 1 {
		return common.Order{}, queue.ErrFull
	}

	if o.ExpiredAt(now) {
		if err := e.evict(o); err != nil {
			return common.Order{}, fmt.Errorf("apply: %w", err)
		}
		return *o, nil
	}

	e.book.Remove(o.ID)
	released := o.Remaining()
	if err := o.TransitionTo(common.Cancelled); err != nil {
		return common.Order{}, fmt.Errorf("apply: %w", err)
	}
	if err := e.events.Push(common.OutEvent(o, common.OutCancelled, released)); err != nil {
		return common.Order{}, fmt.Errorf("apply: %w", err)
	}
	return *o, nil
}

// MatchCrossed resolves any currently crossed resting state, up to limit
// matches. With all crossing done at placement this is normally a no-op,
// but the entry point exists for hosts where resting orders can become
// crossed out-of-band. The newer order (higher sequence) is the taker; the
// older order's price wins.
func (e *Engine) MatchCrossed(limit int, now int64) (int, error) {
	if limit <= 0 {
		return 0, ErrInvalidLimit
	}
	if err := e.market.EnsureActive(); err != nil {
		return 0, err
	}

	matched := 0
	for matched < limit {
		bid, ask := e.book.PeekCrossed()
		if bid == nil {
			break
		}

		// Expired orders at the top of a crossed pair are touched by
		// matching and evicted before any fill.
		if bid.ExpiredAt(now) || ask.ExpiredAt(now) {
			if e.events.Free() < 1 {
				return matched, queue.ErrFull
			}
			victim := bid
			if !bid.ExpiredAt(now) {
				victim = ask
			}
			if err := e.evict(victim); err != nil {
				return matched, fmt.Errorf("apply: %w", err)
			}
			continue
		}

		maker, taker := bid, ask
		if bid.Seq > ask.Seq {
			maker, taker = ask, bid
		}
		qty := num.Min(bid.Remaining(), ask.Remaining())
		if _, err := num.CheckedMul(maker.Price, qty); err != nil {
			return matched, fmt.Errorf("match step: %w", err)
		}

		needed := 1
		if bid.Remaining() == qty {
			needed++
		}
		if ask.Remaining() == qty {
			needed++
		}
		if e.events.Free() < needed {
			return matched, queue.ErrFull
		}

		maker.Filled += qty
		taker.Filled += qty
		if err := e.events.Push(common.FillEvent(maker, taker, maker.Price, qty)); err != nil {
			return matched, fmt.Errorf("apply: %w", err)
		}
		for _, o := range []*common.Order{maker, taker} {
			if o.Remaining() == 0 {
				e.book.Remove(o.ID)
				if err := o.TransitionTo(common.Filled); err != nil {
					return matched, fmt.Errorf("apply: %w", err)
				}
				if err := e.events.Push(common.OutEvent(o, common.OutFilled, 0)); err != nil {
					return matched, fmt.Errorf("apply: %w", err)
				}
			} else if err := o.TransitionTo(common.PartiallyFilled); err != nil {
				return matched, fmt.Errorf("apply: %w", err)
			}
		}
		matched++
	}
	return matched, nil
}
