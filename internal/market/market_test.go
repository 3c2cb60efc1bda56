package market

import (
	"math"
	"testing"

	"github.com/cockroachdb/apd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/internal/num"
)

func testConfig() Config {
	return Config{
		Base:          "SOL",
		Quote:         "USDC",
		TickSize:      10,
		LotSize:       100,
		BaseDecimals:  9,
		QuoteDecimals: 6,
		MinOrderSize:  100,
		Authority:     "authority",
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TickSize = 0
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig()
	cfg.MinOrderSize = 150 // not a lot multiple
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig()
	cfg.Authority = ""
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrBadConfig)

	cfg = testConfig()
	cfg.BaseDecimals = 19
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrBadConfig)
}

func TestValidateOrder(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	assert.NoError(t, m.ValidateOrder(100, 200))
	assert.ErrorIs(t, m.ValidateOrder(0, 200), ErrInvalidPrice)
	assert.ErrorIs(t, m.ValidateOrder(100, 0), ErrInvalidQuantity)
	assert.ErrorIs(t, m.ValidateOrder(105, 200), ErrInvalidTick)
	assert.ErrorIs(t, m.ValidateOrder(100, 250), ErrInvalidLot)

	// A lot-aligned quantity below the minimum is still rejected.
	cfg := testConfig()
	cfg.MinOrderSize = 500
	m, err = New(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, m.ValidateOrder(100, 100), ErrOrderTooSmall)

	// Unrepresentable notional fails up front.
	m, err = New(testConfig())
	require.NoError(t, err)
	hugePrice := (math.MaxInt64 / 10) * 10
	assert.ErrorIs(t, m.ValidateOrder(int64(hugePrice), 1000), num.ErrOverflow)
}

func TestStateTransitions(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, Active, m.State())
	assert.NoError(t, m.EnsureActive())

	assert.ErrorIs(t, m.Pause("mallory"), ErrNotAuthority)

	require.NoError(t, m.Pause("authority"))
	assert.Equal(t, Paused, m.State())
	assert.ErrorIs(t, m.EnsureActive(), ErrMarketPaused)

	require.NoError(t, m.Resume("authority"))
	assert.NoError(t, m.EnsureActive())

	require.NoError(t, m.Close("authority"))
	assert.ErrorIs(t, m.EnsureActive(), ErrMarketClosed)

	// Closed is terminal.
	assert.ErrorIs(t, m.Pause("authority"), ErrMarketClosed)
	assert.ErrorIs(t, m.Resume("authority"), ErrMarketClosed)
}

func TestDecimalConversions(t *testing.T) {
	m, err := New(testConfig())
	require.NoError(t, err)

	// 20.25 USDC with 6 quote decimals = 20_250_000 units, tick-aligned.
	p, err := m.PriceFromDecimal(apd.New(2025, -2))
	require.NoError(t, err)
	assert.Equal(t, int64(20_250_000), p)
	assert.Equal(t, "20.250000", m.PriceToDecimal(p).Text('f'))

	// 0.0000005 SOL with 9 base decimals = 500 units, lot-aligned.
	q, err := m.QuantityFromDecimal(apd.New(5, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(500), q)

	// Finer than the smallest unit does not quantize.
	_, err = m.PriceFromDecimal(apd.New(1, -9))
	assert.ErrorIs(t, err, ErrNotInteger)

	// Whole units that miss the tick grid are rejected.
	_, err = m.PriceFromDecimal(apd.New(20_250_005, -6))
	assert.ErrorIs(t, err, ErrInvalidTick)

	_, err = m.QuantityFromDecimal(apd.New(550, -9))
	assert.ErrorIs(t, err, ErrInvalidLot)

	_, err = m.PriceFromDecimal(apd.New(-1, 0))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}
