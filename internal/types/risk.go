package types

import (
	"github.com/go-playground/validator/v10"

	"github.com/quantframe/quantframe/pkg/errors"
)

// RiskLimits is the read-only configuration of the risk gate for one run.
type RiskLimits struct {
	// MaxPositionSize caps the sum of all held volumes across symbols.
	MaxPositionSize float64 `yaml:"max_position_size" json:"max_position_size" validate:"gt=0"`
	// MaxCapital caps the notional (including commission) of a single BUY.
	MaxCapital float64 `yaml:"max_capital" json:"max_capital" validate:"gt=0"`
	// MaxDrawdown is the fractional decline from the equity peak beyond
	// which new trades are rejected.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown" validate:"gt=0,lte=1"`
	// PositionLimit caps the post-trade held volume of a single symbol.
	PositionLimit float64 `yaml:"position_limit" json:"position_limit" validate:"gt=0"`
	// VolatilityLimit caps the strategy-reported volatility hint.
	VolatilityLimit float64 `yaml:"volatility_limit" json:"volatility_limit" validate:"gte=0"`
	// CorrelationLimit caps the absolute strategy-reported correlation hint.
	CorrelationLimit float64 `yaml:"correlation_limit" json:"correlation_limit" validate:"gte=0,lte=1"`
}

// DefaultRiskLimits returns the limits used when a config omits the risk
// section.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:  5000,
		MaxCapital:       100000,
		MaxDrawdown:      0.1,
		PositionLimit:    1000,
		VolatilityLimit:  0.2,
		CorrelationLimit: 0.7,
	}
}

// Validate validates the RiskLimits struct.
func (r *RiskLimits) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid risk limits", err)
	}

	return nil
}

// RiskMetrics is the derived, running risk state of a ledger.
type RiskMetrics struct {
	// CurrentDrawdown is the fractional decline of the latest recorded
	// equity from the historical running peak.
	CurrentDrawdown float64 `yaml:"current_drawdown" json:"current_drawdown"`
	// PositionConcentration maps symbol to its share of total held volume.
	PositionConcentration map[string]float64 `yaml:"position_concentration" json:"position_concentration"`
	// CapitalUtilization is total held volume over MaxPositionSize.
	CapitalUtilization float64 `yaml:"capital_utilization" json:"capital_utilization"`
	// TotalPosition is the sum of all held volumes.
	TotalPosition float64 `yaml:"total_position" json:"total_position"`
	// CurrentCapital is the ledger's cash capital.
	CurrentCapital float64 `yaml:"current_capital" json:"current_capital"`
}
