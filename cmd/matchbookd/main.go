package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"matchbook/internal/common"
	"matchbook/internal/crank"
	"matchbook/internal/exchange"
	"matchbook/internal/market"
)

// Config comes from the environment, with a .env file as a fallback.
type config struct {
	logLevel      string
	base          string
	quote         string
	tickSize      int64
	lotSize       int64
	baseDecimals  int64
	quoteDecimals int64
	minOrderSize  int64
	authority     string
	sideCap       int64
	queueCap      int64
	pollInterval  time.Duration
	matchLimit    int64
	consumeBatch  int64
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Msg("not an integer, using default")
	}
	return fallback
}

func loadConfig() config {
	// Absent .env file is fine, real environment still applies.
	_ = godotenv.Load()

	return config{
		logLevel:      envStr("MB_LOG_LEVEL", "info"),
		base:          envStr("MB_MARKET_BASE", "SOL"),
		quote:         envStr("MB_MARKET_QUOTE", "USDC"),
		tickSize:      envInt("MB_TICK_SIZE", 1000),
		lotSize:       envInt("MB_LOT_SIZE", 1_000_000),
		baseDecimals:  envInt("MB_BASE_DECIMALS", 9),
		quoteDecimals: envInt("MB_QUOTE_DECIMALS", 6),
		minOrderSize:  envInt("MB_MIN_ORDER_SIZE", 0),
		authority:     envStr("MB_AUTHORITY", "admin"),
		sideCap:       envInt("MB_MAX_ORDERS_PER_SIDE", 1024),
		queueCap:      envInt("MB_EVENT_QUEUE_CAPACITY", 1024),
		pollInterval:  time.Duration(envInt("MB_CRANK_INTERVAL_MS", 100)) * time.Millisecond,
		matchLimit:    envInt("MB_CRANK_MATCH_LIMIT", 16),
		consumeBatch:  envInt("MB_CRANK_CONSUME_BATCH", 64),
	}
}

// logEvents is the default event sink: it writes every drained event to the
// log. A custody layer or indexer would replace it.
func logEvents(marketID uuid.UUID, events []common.Event) error {
	for _, ev := range events {
		switch ev.Kind {
		case common.EventFill:
			log.Info().
				Str("market", marketID.String()).
				Uint64("seq", ev.Seq).
				Uint64("maker", ev.Fill.MakerID).
				Uint64("taker", ev.Fill.TakerID).
				Int64("price", ev.Fill.Price).
				Int64("quantity", ev.Fill.Quantity).
				Msg("fill")
		case common.EventOut:
			log.Info().
				Str("market", marketID.String()).
				Uint64("seq", ev.Seq).
				Uint64("order", ev.Out.OrderID).
				Str("reason", ev.Out.Reason.String()).
				Int64("released", ev.Out.Released).
				Msg("out")
		}
	}
	return nil
}

func main() {
	cfg := loadConfig()

	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	ex := exchange.New(exchange.Options{
		MaxOrdersPerSide:   int(cfg.sideCap),
		EventQueueCapacity: int(cfg.queueCap),
	})

	marketID, err := ex.CreateMarket(market.Config{
		Base:          cfg.base,
		Quote:         cfg.quote,
		TickSize:      cfg.tickSize,
		LotSize:       cfg.lotSize,
		BaseDecimals:  uint8(cfg.baseDecimals),
		QuoteDecimals: uint8(cfg.quoteDecimals),
		MinOrderSize:  cfg.minOrderSize,
		Authority:     cfg.authority,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("market configuration rejected")
	}
	log.Info().Str("market", marketID.String()).Msg("exchange ready")

	c := crank.New(ex, crank.Config{
		PollInterval: cfg.pollInterval,
		MatchLimit:   int(cfg.matchLimit),
		ConsumeBatch: int(cfg.consumeBatch),
	}, logEvents)

	var tb tomb.Tomb
	tb.Go(func() error { return c.Run(&tb) })

	// Block until a signal arrives, then wind the crank down.
	<-ctx.Done()
	tb.Kill(nil)
	if err := tb.Wait(); err != nil {
		log.Error().Err(err).Msg("crank exited with error")
	}
	log.Info().Msg("shutdown complete")
}
