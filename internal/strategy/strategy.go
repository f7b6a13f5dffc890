// Package strategy defines the pluggable signal contract and the
// registry of available strategies. Strategies are registered at init
// time under a stable identifier; nothing is loaded by file path or
// reflection.
package strategy

import (
	"math"
	"sort"
	"sync"

	"github.com/moznion/go-optional"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// ExitThresholds are the strategy-declared stop-loss and take-profit
// levels, expressed as fractional returns from the entry price. The live
// engine's monitor force-closes positions that breach them.
type ExitThresholds struct {
	StopLoss   float64
	TakeProfit float64
}

// Strategy is the capability interface every trading strategy
// implements. Implementations are stateless with respect to the ledger;
// any bookkeeping they keep is their own.
type Strategy interface {
	// Name returns the strategy's registry identifier.
	Name() string
	// GenerateSignal inspects the bar history window (ascending, last
	// element is the current bar) and returns a trade intent, or None
	// when the strategy has nothing to do. The window is shared and must
	// not be mutated.
	GenerateSignal(bars []types.Bar) (optional.Option[types.Signal], error)
	// OnTrade notifies the strategy of a booked trade it originated.
	OnTrade(trade types.Trade)
	// Thresholds returns the strategy's exit thresholds.
	Thresholds() ExitThresholds
}

// Params carries string-keyed strategy parameters, typically decoded from
// YAML. Numeric values may arrive as int or float64.
type Params map[string]any

// Float reads a float parameter, falling back to def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}

	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, errors.Newf(errors.ErrCodeStrategyConfigError, "parameter %q must be numeric, got %T", key, raw)
	}
}

// Int reads an integer parameter, falling back to def when absent.
func (p Params) Int(key string, def int) (int, error) {
	value, err := p.Float(key, float64(def))
	if err != nil {
		return 0, err
	}

	if value != math.Trunc(value) {
		return 0, errors.Newf(errors.ErrCodeStrategyConfigError, "parameter %q must be an integer, got %v", key, value)
	}

	return int(value), nil
}

// Constructor builds a strategy from its parameters.
type Constructor func(params Params) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Constructor)
)

// Register adds a strategy constructor under the given name. Strategies
// register themselves in init; registering a duplicate name panics since
// it is always a programming error.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic("strategy already registered: " + name)
	}

	registry[name] = constructor
}

// New builds a registered strategy with the given parameters.
func New(name string, params Params) (Strategy, error) {
	registryMu.RLock()
	constructor, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound, "unknown strategy %q", name)
	}

	return constructor(params)
}

// Names returns all registered strategy names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// tracker is the shared position/trade bookkeeping embedded by the
// concrete strategies.
type tracker struct {
	mu        sync.Mutex
	positions map[string]float64
	trades    []types.Trade
}

func newTracker() tracker {
	return tracker{
		positions: make(map[string]float64),
	}
}

// OnTrade updates the strategy's own view of its positions.
func (t *tracker) OnTrade(trade types.Trade) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch trade.Action {
	case types.ActionBuy:
		t.positions[trade.Symbol] += trade.Volume
	case types.ActionSell:
		t.positions[trade.Symbol] -= trade.Volume
	}

	t.trades = append(t.trades, trade)
}

// position returns the strategy's view of its held volume in symbol.
func (t *tracker) position(symbol string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.positions[symbol]
}

// exitThresholds reads the shared stop_loss/take_profit parameters.
func exitThresholds(params Params) (ExitThresholds, error) {
	stopLoss, err := params.Float("stop_loss", 0.1)
	if err != nil {
		return ExitThresholds{}, err
	}

	takeProfit, err := params.Float("take_profit", 0.2)
	if err != nil {
		return ExitThresholds{}, err
	}

	return ExitThresholds{StopLoss: stopLoss, TakeProfit: takeProfit}, nil
}

// sma returns the simple moving average of the closes of the last
// window bars.
func sma(bars []types.Bar, window int) float64 {
	sum := 0.0
	for _, bar := range bars[len(bars)-window:] {
		sum += bar.Close
	}

	return sum / float64(window)
}

// annualizedVolatility estimates annualized close-to-close return
// volatility over the last window bars, reported to the gate as a risk
// hint.
func annualizedVolatility(bars []types.Bar, window int) optional.Option[float64] {
	if len(bars) < window+1 {
		return optional.None[float64]()
	}

	recent := bars[len(bars)-window-1:]
	returns := make([]float64, 0, window)

	for i := 1; i < len(recent); i++ {
		prev := recent[i-1].Close
		if prev == 0 {
			return optional.None[float64]()
		}

		returns = append(returns, recent[i].Close/prev-1)
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}

	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}

	variance /= float64(len(returns))

	return optional.Some(math.Sqrt(variance) * math.Sqrt(252))
}
