package common

import "fmt"

// Events are the only output of the matching core. The custody layer applies
// balance effects from them, in emitted order, exactly once per sequence
// number. Slots are fixed-size on purpose: the event queue is a ring of
// these.

type EventKind int

const (
	EventFill EventKind = iota
	EventOut
)

func (k EventKind) String() string {
	if k == EventFill {
		return "fill"
	}
	return "out"
}

// OutReason says why an order left the book (or never entered it).
type OutReason int

const (
	OutCancelled OutReason = iota
	OutExpired
	OutFilled
)

func (r OutReason) String() string {
	switch r {
	case OutCancelled:
		return "cancelled"
	case OutExpired:
		return "expired"
	case OutFilled:
		return "filled"
	}
	return "unknown"
}

// Fill records one match. Price is always the maker's resting price.
type Fill struct {
	MakerID       uint64
	TakerID       uint64
	MakerClientID uint64
	TakerClientID uint64
	MakerOwner    string
	TakerOwner    string
	TakerSide     Side
	Price         int64
	Quantity      int64
}

// Out records an order leaving the book. Released is the unfilled quantity
// handed back to the owner; zero for fully filled orders.
type Out struct {
	OrderID  uint64
	ClientID uint64
	Owner    string
	Side     Side
	Reason   OutReason
	Released int64
}

// Event is one slot in the event queue. Seq is assigned by the queue on push
// and is the consumer's idempotency key. Exactly one of Fill/Out is
// meaningful, selected by Kind.
type Event struct {
	Seq  uint64
	Kind EventKind
	Fill Fill
	Out  Out
}

// FillEvent builds an unsequenced fill event; the queue assigns Seq.
func FillEvent(maker, taker *Order, price, quantity int64) Event {
	return Event{
		Kind: EventFill,
		Fill: Fill{
			MakerID:       maker.ID,
			TakerID:       taker.ID,
			MakerClientID: maker.ClientID,
			TakerClientID: taker.ClientID,
			MakerOwner:    maker.Owner,
			TakerOwner:    taker.Owner,
			TakerSide:     taker.Side,
			Price:         price,
			Quantity:      quantity,
		},
	}
}

// OutEvent builds an unsequenced out event for an order leaving the book.
func OutEvent(o *Order, reason OutReason, released int64) Event {
	return Event{
		Kind: EventOut,
		Out: Out{
			OrderID:  o.ID,
			ClientID: o.ClientID,
			Owner:    o.Owner,
			Side:     o.Side,
			Reason:   reason,
			Released: released,
		},
	}
}

func (e Event) String() string {
	if e.Kind == EventFill {
		return fmt.Sprintf("event %d fill maker=%d taker=%d %d@%d",
			e.Seq, e.Fill.MakerID, e.Fill.TakerID, e.Fill.Quantity, e.Fill.Price)
	}
	return fmt.Sprintf("event %d out order=%d reason=%s released=%d",
		e.Seq, e.Out.OrderID, e.Out.Reason, e.Out.Released)
}
