// Package market holds per-market configuration and state. A market is
// created once, is immutable afterwards except for Paused/Closed transitions
// by its authority, and is the unit the host serializes access around.
package market

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/apd"
	"github.com/google/uuid"

	"matchbook/internal/num"
)

var (
	ErrBadConfig       = errors.New("invalid market configuration")
	ErrMarketPaused    = errors.New("market is paused")
	ErrMarketClosed    = errors.New("market is closed")
	ErrNotAuthority    = errors.New("caller is not the market authority")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidTick     = errors.New("price is not a multiple of tick size")
	ErrInvalidLot      = errors.New("quantity is not a multiple of lot size")
	ErrOrderTooSmall   = errors.New("order size below market minimum")
	ErrNotInteger      = errors.New("value does not quantize to a whole unit")
)

type State int

const (
	Active State = iota
	// Paused markets are cancel-only: no placement, no matching.
	Paused
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Paused:
		return "paused"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type Config struct {
	Base          string // Base asset symbol
	Quote         string // Quote asset symbol
	TickSize      int64  // Minimum price increment, quote units
	LotSize       int64  // Minimum quantity increment, base units
	BaseDecimals  uint8  //
	QuoteDecimals uint8  //
	MinOrderSize  int64  // Minimum quantity per order, base units
	Authority     string // Account allowed to pause/resume/close
}

type Market struct {
	ID  uuid.UUID
	cfg Config

	state State
}

func New(cfg Config) (*Market, error) {
	if cfg.TickSize <= 0 || cfg.LotSize <= 0 {
		return nil, fmt.Errorf("%w: tick and lot size must be positive", ErrBadConfig)
	}
	if cfg.BaseDecimals > 18 || cfg.QuoteDecimals > 18 {
		return nil, fmt.Errorf("%w: decimals above 18 overflow int64 amounts", ErrBadConfig)
	}
	if cfg.MinOrderSize < 0 || !num.Aligned(cfg.MinOrderSize, cfg.LotSize) {
		return nil, fmt.Errorf("%w: min order size must be a multiple of lot size", ErrBadConfig)
	}
	if cfg.Authority == "" {
		return nil, fmt.Errorf("%w: authority required", ErrBadConfig)
	}
	return &Market{ID: uuid.New(), cfg: cfg}, nil
}

func (m *Market) Name() string {
	return m.cfg.Base + "/" + m.cfg.Quote
}

func (m *Market) Config() Config {
	return m.cfg
}

func (m *Market) State() State {
	return m.state
}

// EnsureActive gates placement and matching. Cancellation stays allowed in
// every state so owners can always release resting balances.
func (m *Market) EnsureActive() error {
	switch m.state {
	case Paused:
		return ErrMarketPaused
	case Closed:
		return ErrMarketClosed
	}
	return nil
}

// Pause puts the market into cancel-only mode.
func (m *Market) Pause(by string) error {
	if by != m.cfg.Authority {
		return ErrNotAuthority
	}
	if m.state == Closed {
		return ErrMarketClosed
	}
	m.state = Paused
	return nil
}

// Resume reactivates a paused market.
func (m *Market) Resume(by string) error {
	if by != m.cfg.Authority {
		return ErrNotAuthority
	}
	if m.state == Closed {
		return ErrMarketClosed
	}
	m.state = Active
	return nil
}

// Close shuts the market permanently.
func (m *Market) Close(by string) error {
	if by != m.cfg.Authority {
		return ErrNotAuthority
	}
	m.state = Closed
	return nil
}

// ValidateOrder checks price/quantity quantization before any state is
// touched. The notional product is computed checked so an order whose value
// cannot be represented is rejected here rather than mid-match.
func (m *Market) ValidateOrder(price, qty int64) error {
	if price <= 0 {
		return ErrInvalidPrice
	}
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if !num.Aligned(price, m.cfg.TickSize) {
		return ErrInvalidTick
	}
	if !num.Aligned(qty, m.cfg.LotSize) {
		return ErrInvalidLot
	}
	if qty < m.cfg.MinOrderSize {
		return ErrOrderTooSmall
	}
	if _, err := num.CheckedMul(price, qty); err != nil {
		return fmt.Errorf("notional: %w", err)
	}
	return nil
}

// apdCtx has enough precision for any int64 scaled by up to 18 decimals.
var apdCtx = apd.BaseContext.WithPrecision(40)

// scaleToUnits converts a human decimal to integer smallest units
// (d * 10^decimals), rejecting values that do not land on a whole unit.
func scaleToUnits(d *apd.Decimal, decimals uint8) (int64, error) {
	var scaled apd.Decimal
	if _, err := apdCtx.Mul(&scaled, d, apd.New(1, int32(decimals))); err != nil {
		return 0, err
	}
	v, err := scaled.Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNotInteger, d)
	}
	return v, nil
}

// PriceFromDecimal converts a human-readable price (quote per base unit) to
// quote units, requiring tick alignment.
func (m *Market) PriceFromDecimal(d *apd.Decimal) (int64, error) {
	p, err := scaleToUnits(d, m.cfg.QuoteDecimals)
	if err != nil {
		return 0, err
	}
	if p <= 0 {
		return 0, ErrInvalidPrice
	}
	if !num.Aligned(p, m.cfg.TickSize) {
		return 0, ErrInvalidTick
	}
	return p, nil
}

// QuantityFromDecimal converts a human-readable quantity to base units,
// requiring lot alignment.
func (m *Market) QuantityFromDecimal(d *apd.Decimal) (int64, error) {
	q, err := scaleToUnits(d, m.cfg.BaseDecimals)
	if err != nil {
		return 0, err
	}
	if q <= 0 {
		return 0, ErrInvalidQuantity
	}
	if !num.Aligned(q, m.cfg.LotSize) {
		return 0, ErrInvalidLot
	}
	return q, nil
}

// PriceToDecimal renders quote units back as a human-readable price.
func (m *Market) PriceToDecimal(price int64) *apd.Decimal {
	return apd.New(price, -int32(m.cfg.QuoteDecimals))
}

// QuantityToDecimal renders base units back as a human-readable quantity.
func (m *Market) QuantityToDecimal(qty int64) *apd.Decimal {
	return apd.New(qty, -int32(m.cfg.BaseDecimals))
}
