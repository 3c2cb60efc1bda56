package common

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition marks an illegal order lifecycle transition. Unlike
// the validation errors, hitting this means the core itself is broken, not
// that the caller sent a bad request.
var ErrInvalidTransition = errors.New("invalid order state transition")

type Side int

const (
	Bid Side = iota
	Ask
)

// Opposite returns the side an order on this side matches against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	}
	return "unknown"
}

type OrderType int

const (
	// Limit orders fill as far as the book allows and rest the remainder.
	Limit OrderType = iota
	// PostOnly orders must rest in full; they are rejected outright if any
	// part of them would cross the book.
	PostOnly
	// ImmediateOrCancel orders fill what they can and discard the rest.
	ImmediateOrCancel
	// FillOrKill orders fill in full immediately or are rejected without
	// touching the book.
	FillOrKill
)

// CanRest reports whether a remainder of this order type may stay in the
// book after matching.
func (t OrderType) CanRest() bool {
	return t == Limit || t == PostOnly
}

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case PostOnly:
		return "post_only"
	case ImmediateOrCancel:
		return "ioc"
	case FillOrKill:
		return "fok"
	}
	return "unknown"
}

type Status int

const (
	// New exists only while an order is being validated; it never rests.
	New Status = iota
	Open
	PartiallyFilled
	Filled
	Cancelled
	Expired
)

func (s Status) String() string {
	switch s {
	case New:
		return "new"
	case Open:
		return "open"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	}
	return "unknown"
}

// Terminal reports whether no further transition out of s is legal.
func (s Status) Terminal() bool {
	return s == Filled || s == Cancelled || s == Expired
}

// legalTransitions is the full lifecycle:
// New -> Open -> {PartiallyFilled -> Filled | Cancelled | Expired}.
// PartiallyFilled self-transitions cover repeated partial fills.
var legalTransitions = map[Status][]Status{
	New:             {Open, PartiallyFilled, Filled, Cancelled, Expired},
	Open:            {PartiallyFilled, Filled, Cancelled, Expired},
	PartiallyFilled: {PartiallyFilled, Filled, Cancelled, Expired},
}

type Order struct {
	ID       uint64    // Market-unique id, assigned monotonically
	ClientID uint64    // Opaque caller-supplied tag, carried through events
	Owner    string    // Opaque account reference
	Side     Side      //
	Type     OrderType //
	Price    int64     // Quote units, tick-aligned
	Quantity int64     // Base units, lot-aligned
	Filled   int64     // Filled so far; Filled <= Quantity always
	Seq      uint64    // Insertion order, the time-priority tie-break
	Expiry   int64     // Unix seconds; zero means good-til-cancelled
	Status   Status    //
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Quantity - o.Filled
}

// ExpiredAt reports whether the order has an expiry and it has passed.
func (o *Order) ExpiredAt(now int64) bool {
	return o.Expiry != 0 && now > o.Expiry
}

// TransitionTo moves the order to a new lifecycle status, or returns
// ErrInvalidTransition if the move is not legal.
func (o *Order) TransitionTo(next Status) error {
	for _, s := range legalTransitions[o.Status] {
		if s == next {
			o.Status = next
			return nil
		}
	}
	return fmt.Errorf("%w: %v -> %v (order %d)", ErrInvalidTransition, o.Status, next, o.ID)
}

func (o *Order) String() string {
	return fmt.Sprintf("order %d %s %s %d@%d filled=%d seq=%d status=%s owner=%s",
		o.ID, o.Side, o.Type, o.Quantity, o.Price, o.Filled, o.Seq, o.Status, o.Owner)
}
