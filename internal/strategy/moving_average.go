package strategy

import (
	"github.com/moznion/go-optional"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// NameMovingAverage identifies the moving-average cross strategy.
const NameMovingAverage = "moving_average"

func init() {
	Register(NameMovingAverage, NewMovingAverage)
}

// MovingAverage emits a BUY when the short moving average crosses above
// the long one (golden cross) and a SELL when it crosses below (death
// cross).
type MovingAverage struct {
	tracker
	shortWindow  int
	longWindow   int
	positionSize float64
	thresholds   ExitThresholds
}

// NewMovingAverage builds the strategy from params:
// short_window (5), long_window (20), position_size (100).
func NewMovingAverage(params Params) (Strategy, error) {
	shortWindow, err := params.Int("short_window", 5)
	if err != nil {
		return nil, err
	}

	longWindow, err := params.Int("long_window", 20)
	if err != nil {
		return nil, err
	}

	positionSize, err := params.Float("position_size", 100)
	if err != nil {
		return nil, err
	}

	if shortWindow <= 0 || longWindow <= shortWindow {
		return nil, errors.Newf(errors.ErrCodeStrategyConfigError,
			"moving_average requires 0 < short_window < long_window, got %d/%d", shortWindow, longWindow)
	}

	if positionSize <= 0 {
		return nil, errors.New(errors.ErrCodeStrategyConfigError, "moving_average requires position_size > 0")
	}

	thresholds, err := exitThresholds(params)
	if err != nil {
		return nil, err
	}

	return &MovingAverage{
		tracker:      newTracker(),
		shortWindow:  shortWindow,
		longWindow:   longWindow,
		positionSize: positionSize,
		thresholds:   thresholds,
	}, nil
}

// Name implements Strategy.
func (s *MovingAverage) Name() string {
	return NameMovingAverage
}

// Thresholds implements Strategy.
func (s *MovingAverage) Thresholds() ExitThresholds {
	return s.thresholds
}

// GenerateSignal implements Strategy.
func (s *MovingAverage) GenerateSignal(bars []types.Bar) (optional.Option[types.Signal], error) {
	// Need one extra bar to compare against the previous averages.
	if len(bars) < s.longWindow+1 {
		return optional.None[types.Signal](), nil
	}

	current := bars[len(bars)-1]
	previous := bars[:len(bars)-1]

	currShort := sma(bars, s.shortWindow)
	currLong := sma(bars, s.longWindow)
	prevShort := sma(previous, s.shortWindow)
	prevLong := sma(previous, s.longWindow)

	var action types.SignalAction

	switch {
	case prevShort <= prevLong && currShort > currLong:
		action = types.ActionBuy
	case prevShort >= prevLong && currShort < currLong:
		action = types.ActionSell
	default:
		return optional.None[types.Signal](), nil
	}

	if action == types.ActionSell && s.position(current.Symbol) <= 0 {
		// Nothing held to sell; the gate would reject it anyway.
		return optional.None[types.Signal](), nil
	}

	return optional.Some(types.Signal{
		Time:     current.Time,
		Symbol:   current.Symbol,
		Action:   action,
		Price:    current.Close,
		Volume:   s.positionSize,
		Strength: 1,
		Hints: types.RiskHints{
			Volatility: annualizedVolatility(bars, s.longWindow),
		},
	}), nil
}
