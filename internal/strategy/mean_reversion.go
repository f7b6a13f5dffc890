package strategy

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// NameMeanReversion identifies the band mean-reversion strategy.
const NameMeanReversion = "mean_reversion"

func init() {
	Register(NameMeanReversion, NewMeanReversion)
}

// MeanReversion trades deviations from a rolling mean: BUY when the
// close drops below the lower band, SELL back when it rises above the
// upper band. Bands sit std_dev standard deviations from the mean.
type MeanReversion struct {
	tracker
	period       int
	stdDev       float64
	positionSize float64
	thresholds   ExitThresholds
}

// NewMeanReversion builds the strategy from params:
// period (20), std_dev (2), position_size (100).
func NewMeanReversion(params Params) (Strategy, error) {
	period, err := params.Int("period", 20)
	if err != nil {
		return nil, err
	}

	stdDev, err := params.Float("std_dev", 2)
	if err != nil {
		return nil, err
	}

	positionSize, err := params.Float("position_size", 100)
	if err != nil {
		return nil, err
	}

	if period < 2 || stdDev <= 0 || positionSize <= 0 {
		return nil, errors.New(errors.ErrCodeStrategyConfigError,
			"mean_reversion requires period >= 2, std_dev > 0 and position_size > 0")
	}

	thresholds, err := exitThresholds(params)
	if err != nil {
		return nil, err
	}

	return &MeanReversion{
		tracker:      newTracker(),
		period:       period,
		stdDev:       stdDev,
		positionSize: positionSize,
		thresholds:   thresholds,
	}, nil
}

// Name implements Strategy.
func (s *MeanReversion) Name() string {
	return NameMeanReversion
}

// Thresholds implements Strategy.
func (s *MeanReversion) Thresholds() ExitThresholds {
	return s.thresholds
}

// GenerateSignal implements Strategy.
func (s *MeanReversion) GenerateSignal(bars []types.Bar) (optional.Option[types.Signal], error) {
	if len(bars) < s.period {
		return optional.None[types.Signal](), nil
	}

	current := bars[len(bars)-1]
	mean := sma(bars, s.period)

	variance := 0.0
	for _, bar := range bars[len(bars)-s.period:] {
		variance += (bar.Close - mean) * (bar.Close - mean)
	}

	std := math.Sqrt(variance / float64(s.period))
	if std == 0 {
		return optional.None[types.Signal](), nil
	}

	deviation := (current.Close - mean) / std

	var action types.SignalAction

	switch {
	case deviation < -s.stdDev:
		action = types.ActionBuy
	case deviation > s.stdDev:
		action = types.ActionSell
	default:
		return optional.None[types.Signal](), nil
	}

	if action == types.ActionSell && s.position(current.Symbol) <= 0 {
		return optional.None[types.Signal](), nil
	}

	// Deeper deviations carry more conviction, capped at twice the band.
	strength := math.Min(1, math.Abs(deviation)/(2*s.stdDev))

	return optional.Some(types.Signal{
		Time:     current.Time,
		Symbol:   current.Symbol,
		Action:   action,
		Price:    current.Close,
		Volume:   s.positionSize,
		Strength: strength,
		Hints: types.RiskHints{
			Volatility: annualizedVolatility(bars, s.period),
		},
	}), nil
}
