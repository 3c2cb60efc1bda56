// Package crank is the scheduling glue around the core: a background loop
// that periodically resolves crossed books and drains event queues, handing
// drained events to a consumer (custody layer, indexer). Anyone may crank;
// the loop holds no state the core depends on.
package crank

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchbook/internal/common"
	"matchbook/internal/exchange"
	"matchbook/internal/market"
	"matchbook/internal/queue"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	defaultMatchLimit   = 16
	defaultConsumeBatch = 64
)

// Consumer receives drained events for one market. Events are redelivered
// from the same head until the consumer succeeds, so it must be idempotent
// on Event.Seq.
type Consumer func(marketID uuid.UUID, events []common.Event) error

type Config struct {
	PollInterval time.Duration // How often to sweep all markets
	MatchLimit   int           // Max matches per market per sweep
	ConsumeBatch int           // Max events drained per market per sweep
}

type Crank struct {
	ex      *exchange.Exchange
	cfg     Config
	consume Consumer
}

func New(ex *exchange.Exchange, cfg Config, consume Consumer) *Crank {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MatchLimit <= 0 {
		cfg.MatchLimit = defaultMatchLimit
	}
	if cfg.ConsumeBatch <= 0 {
		cfg.ConsumeBatch = defaultConsumeBatch
	}
	return &Crank{ex: ex, cfg: cfg, consume: consume}
}

// Run sweeps all markets on every tick until the tomb dies.
func (c *Crank) Run(t *tomb.Tomb) error {
	log.Info().Dur("interval", c.cfg.PollInterval).Msg("crank running")
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			log.Info().Msg("crank stopping")
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep runs one matching-and-draining pass over every market.
func (c *Crank) Sweep() {
	for _, id := range c.ex.Markets() {
		c.crankMarket(id)
	}
}

func (c *Crank) crankMarket(id uuid.UUID) {
	if _, err := c.ex.MatchOrders(id, c.cfg.MatchLimit); err != nil {
		switch {
		case errors.Is(err, exchange.ErrContention):
			// A step is in flight; this market keeps until the next tick.
			return
		case errors.Is(err, market.ErrMarketPaused), errors.Is(err, market.ErrMarketClosed):
			// Cancel-only or closed: no matching, but events still drain.
		case errors.Is(err, queue.ErrFull):
			// Backpressure; the drain below frees slots for the next pass.
		default:
			log.Error().Err(err).Str("market", id.String()).Msg("match pass failed")
			return
		}
	}

	events, err := c.ex.ConsumeEvents(id, c.cfg.ConsumeBatch)
	if err != nil || len(events) == 0 {
		return
	}
	if err := c.consume(id, events); err != nil {
		// Not acked: the same events come around again next sweep.
		log.Warn().Err(err).Str("market", id.String()).Int("events", len(events)).Msg("consumer failed, will redeliver")
		return
	}
	if _, err := c.ex.AckEvents(id, events[len(events)-1].Seq+1); err != nil {
		log.Warn().Err(err).Str("market", id.String()).Msg("ack failed, will redeliver")
	}
}
