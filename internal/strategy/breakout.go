package strategy

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// NameBreakout identifies the channel breakout strategy.
const NameBreakout = "breakout"

func init() {
	Register(NameBreakout, NewBreakout)
}

// Breakout enters when the close clears the rolling high of the prior
// period by threshold, and exits when it falls through the rolling low
// by the same margin.
type Breakout struct {
	tracker
	period       int
	threshold    float64
	positionSize float64
	thresholds   ExitThresholds
}

// NewBreakout builds the strategy from params:
// period (20), threshold (0.02), position_size (100).
func NewBreakout(params Params) (Strategy, error) {
	period, err := params.Int("period", 20)
	if err != nil {
		return nil, err
	}

	threshold, err := params.Float("threshold", 0.02)
	if err != nil {
		return nil, err
	}

	positionSize, err := params.Float("position_size", 100)
	if err != nil {
		return nil, err
	}

	if period < 1 || threshold < 0 || positionSize <= 0 {
		return nil, errors.New(errors.ErrCodeStrategyConfigError,
			"breakout requires period >= 1, threshold >= 0 and position_size > 0")
	}

	thresholds, err := exitThresholds(params)
	if err != nil {
		return nil, err
	}

	return &Breakout{
		tracker:      newTracker(),
		period:       period,
		threshold:    threshold,
		positionSize: positionSize,
		thresholds:   thresholds,
	}, nil
}

// Name implements Strategy.
func (s *Breakout) Name() string {
	return NameBreakout
}

// Thresholds implements Strategy.
func (s *Breakout) Thresholds() ExitThresholds {
	return s.thresholds
}

// GenerateSignal implements Strategy.
func (s *Breakout) GenerateSignal(bars []types.Bar) (optional.Option[types.Signal], error) {
	// The channel is built from the period bars before the current one.
	if len(bars) < s.period+1 {
		return optional.None[types.Signal](), nil
	}

	current := bars[len(bars)-1]
	window := bars[len(bars)-1-s.period : len(bars)-1]

	highMax := math.Inf(-1)
	lowMin := math.Inf(1)

	for _, bar := range window {
		highMax = math.Max(highMax, bar.High)
		lowMin = math.Min(lowMin, bar.Low)
	}

	var action types.SignalAction

	switch {
	case current.Close > highMax*(1+s.threshold):
		action = types.ActionBuy
	case current.Close < lowMin*(1-s.threshold):
		action = types.ActionSell
	default:
		return optional.None[types.Signal](), nil
	}

	if action == types.ActionSell && s.position(current.Symbol) <= 0 {
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
			Volatility: annualizedVolatility(bars, s.period),
		},
	}), nil
}
