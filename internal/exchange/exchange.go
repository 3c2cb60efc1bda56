// Package exchange is the host boundary around the matching core. It owns
// the market registry, serializes access per market (at most one in-flight
// step per market, with busy markets surfacing a retryable error), and is
// the only layer that logs.
package exchange

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"matchbook/internal/common"
	"matchbook/internal/engine"
	"matchbook/internal/market"
)

var (
	ErrMarketNotFound = errors.New("market not found")
	// ErrContention means another step is in flight on this market; the
	// caller should retry.
	ErrContention = errors.New("market step in flight, retry")
)

// Clock supplies the engine's notion of time, injectable for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	defaultMaxOrdersPerSide = 1024
	defaultQueueCapacity    = 1024
)

type Options struct {
	Clock              Clock // nil means wall clock
	MaxOrdersPerSide   int   // per-market resting cap per side
	EventQueueCapacity int   // per-market event queue size
}

// marketCtx pairs an engine with the mutex that serializes its steps.
type marketCtx struct {
	mu  sync.Mutex
	eng *engine.Engine
}

type Exchange struct {
	mu      sync.RWMutex
	markets map[uuid.UUID]*marketCtx

	clock    Clock
	sideCap  int
	queueCap int
}

func New(opts Options) *Exchange {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.MaxOrdersPerSide <= 0 {
		opts.MaxOrdersPerSide = defaultMaxOrdersPerSide
	}
	if opts.EventQueueCapacity <= 0 {
		opts.EventQueueCapacity = defaultQueueCapacity
	}
	return &Exchange{
		markets:  make(map[uuid.UUID]*marketCtx),
		clock:    opts.Clock,
		sideCap:  opts.MaxOrdersPerSide,
		queueCap: opts.EventQueueCapacity,
	}
}

// CreateMarket registers a new market with an empty book and queue.
func (x *Exchange) CreateMarket(cfg market.Config) (uuid.UUID, error) {
	m, err := market.New(cfg)
	if err != nil {
		return uuid.Nil, err
	}
	eng, err := engine.New(m, x.sideCap, x.queueCap)
	if err != nil {
		return uuid.Nil, err
	}

	x.mu.Lock()
	x.markets[m.ID] = &marketCtx{eng: eng}
	x.mu.Unlock()

	log.Info().
		Str("market", m.ID.String()).
		Str("name", m.Name()).
		Int64("tick_size", cfg.TickSize).
		Int64("lot_size", cfg.LotSize).
		Msg("market created")
	return m.ID, nil
}

// Markets lists all registered market ids.
func (x *Exchange) Markets() []uuid.UUID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(x.markets))
	for id := range x.markets {
		ids = append(ids, id)
	}
	return ids
}

func (x *Exchange) market(id uuid.UUID) (*marketCtx, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	c, ok := x.markets[id]
	if !ok {
		return nil, ErrMarketNotFound
	}
	return c, nil
}

// acquire takes the per-market step lock, or reports contention for the
// host to retry. It never blocks: the core has no suspension points and
// neither does its boundary.
func (x *Exchange) acquire(id uuid.UUID) (*marketCtx, error) {
	c, err := x.market(id)
	if err != nil {
		return nil, err
	}
	if !c.mu.TryLock() {
		return nil, ErrContention
	}
	return c, nil
}

// PlaceOrder runs one matching step for a new order.
func (x *Exchange) PlaceOrder(marketID uuid.UUID, p engine.PlaceParams) (engine.Result, error) {
	c, err := x.acquire(marketID)
	if err != nil {
		return engine.Result{}, err
	}
	defer c.mu.Unlock()

	res, err := c.eng.Place(p, x.clock.Now().Unix())
	if err != nil {
		if errors.Is(err, common.ErrInvalidTransition) {
			log.Error().Err(err).Str("market", marketID.String()).Msg("core invariant violation")
		} else {
			log.Debug().Err(err).Str("market", marketID.String()).Str("owner", p.Owner).Msg("order rejected")
		}
		return engine.Result{}, err
	}

	log.Debug().
		Str("market", marketID.String()).
		Uint64("order", res.Order.ID).
		Str("side", res.Order.Side.String()).
		Str("type", res.Order.Type.String()).
		Int64("price", res.Order.Price).
		Int64("quantity", res.Order.Quantity).
		Int("fills", res.Fills).
		Str("status", res.Order.Status.String()).
		Msg("order placed")
	return res, nil
}

// CancelOrder removes a resting order on behalf of its owner.
func (x *Exchange) CancelOrder(marketID uuid.UUID, orderID uint64, owner string) (common.Order, error) {
	c, err := x.acquire(marketID)
	if err != nil {
		return common.Order{}, err
	}
	defer c.mu.Unlock()

	o, err := c.eng.Cancel(orderID, owner, x.clock.Now().Unix())
	if err != nil {
		if errors.Is(err, common.ErrInvalidTransition) {
			log.Error().Err(err).Str("market", marketID.String()).Uint64("order", orderID).Msg("core invariant violation")
		}
		return common.Order{}, err
	}

	log.Debug().
		Str("market", marketID.String()).
		Uint64("order", orderID).
		Str("status", o.Status.String()).
		Msg("order removed")
	return o, nil
}

// MatchOrders resolves crossed resting state, crank-driven.
func (x *Exchange) MatchOrders(marketID uuid.UUID, limit int) (int, error) {
	c, err := x.acquire(marketID)
	if err != nil {
		return 0, err
	}
	defer c.mu.Unlock()

	matched, err := c.eng.MatchCrossed(limit, x.clock.Now().Unix())
	if matched > 0 {
		log.Info().Str("market", marketID.String()).Int("matched", matched).Msg("crank matched orders")
	}
	return matched, err
}

// ConsumeEvents returns up to max unacknowledged events. The head does not
// advance until AckEvents; consumers must be idempotent on Event.Seq.
func (x *Exchange) ConsumeEvents(marketID uuid.UUID, max int) ([]common.Event, error) {
	c, err := x.acquire(marketID)
	if err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.eng.Events().Drain(max), nil
}

// AckEvents acknowledges every event with Seq < upTo, freeing queue slots.
func (x *Exchange) AckEvents(marketID uuid.UUID, upTo uint64) (int, error) {
	c, err := x.acquire(marketID)
	if err != nil {
		return 0, err
	}
	defer c.mu.Unlock()
	return c.eng.Events().Ack(upTo), nil
}

// Order returns a snapshot of any order ever placed on a market.
func (x *Exchange) Order(marketID uuid.UUID, orderID uint64) (common.Order, error) {
	c, err := x.acquire(marketID)
	if err != nil {
		return common.Order{}, err
	}
	defer c.mu.Unlock()
	o, ok := c.eng.Order(orderID)
	if !ok {
		return common.Order{}, engine.ErrOrderNotFound
	}
	return o, nil
}

// PauseMarket puts a market into cancel-only mode. Authority only.
func (x *Exchange) PauseMarket(marketID uuid.UUID, by string) error {
	return x.adminOp(marketID, by, (*market.Market).Pause, "market paused")
}

// ResumeMarket reactivates a paused market. Authority only.
func (x *Exchange) ResumeMarket(marketID uuid.UUID, by string) error {
	return x.adminOp(marketID, by, (*market.Market).Resume, "market resumed")
}

// CloseMarket closes a market permanently. Authority only.
func (x *Exchange) CloseMarket(marketID uuid.UUID, by string) error {
	return x.adminOp(marketID, by, (*market.Market).Close, "market closed")
}

func (x *Exchange) adminOp(marketID uuid.UUID, by string, op func(*market.Market, string) error, msg string) error {
	c, err := x.acquire(marketID)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()
	if err := op(c.eng.Market(), by); err != nil {
		return err
	}
	log.Info().Str("market", marketID.String()).Msg(msg)
	return nil
}
