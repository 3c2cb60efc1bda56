package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionLifecycle(t *testing.T) {
	o := &Order{ID: 1, Quantity: 10}

	assert.NoError(t, o.TransitionTo(Open))
	assert.NoError(t, o.TransitionTo(PartiallyFilled))
	// Repeated partial fills are legal.
	assert.NoError(t, o.TransitionTo(PartiallyFilled))
	assert.NoError(t, o.TransitionTo(Filled))
	assert.True(t, o.Status.Terminal())
}

func TestTransitionOutOfTerminal(t *testing.T) {
	for _, terminal := range []Status{Filled, Cancelled, Expired} {
		o := &Order{ID: 1, Status: terminal}
		for _, next := range []Status{Open, PartiallyFilled, Filled, Cancelled, Expired} {
			assert.ErrorIs(t, o.TransitionTo(next), ErrInvalidTransition)
			assert.Equal(t, terminal, o.Status, "failed transition must not mutate status")
		}
	}
}

func TestTransitionSkipsOpen(t *testing.T) {
	// IOC/PostOnly rejections go straight from New to a terminal state.
	o := &Order{ID: 1, Status: New}
	assert.NoError(t, o.TransitionTo(Cancelled))

	o = &Order{ID: 2, Status: New}
	assert.NoError(t, o.TransitionTo(Filled))

	// Open never re-enters.
	o = &Order{ID: 3, Status: PartiallyFilled}
	assert.ErrorIs(t, o.TransitionTo(Open), ErrInvalidTransition)
}

func TestExpiredAt(t *testing.T) {
	gtc := &Order{ID: 1}
	assert.False(t, gtc.ExpiredAt(1_000_000))

	o := &Order{ID: 2, Expiry: 500}
	assert.False(t, o.ExpiredAt(500))
	assert.True(t, o.ExpiredAt(501))
}

func TestRemaining(t *testing.T) {
	o := &Order{Quantity: 10, Filled: 4}
	assert.Equal(t, int64(6), o.Remaining())
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, Ask, Bid.Opposite())
	assert.Equal(t, Bid, Ask.Opposite())
}
