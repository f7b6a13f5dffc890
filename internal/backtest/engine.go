// Package backtest replays bar history day by day through the
// configured strategies and the risk gate, producing a deterministic
// equity curve and trade list.
package backtest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/ledger"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/risk"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// Assignment pairs a strategy instance with the symbols it trades.
// Assignments are evaluated in the order they were added; within one
// assignment, symbols are evaluated in list order.
type Assignment struct {
	Strategy strategy.Strategy
	Symbols  []string
}

// Engine runs one backtest. The ledger and gate are created fresh per
// Run call, but the assigned strategies carry their own indicator and
// position-tracking state across calls. Build a fresh engine with
// freshly constructed strategies for each run.
type Engine struct {
	config      Config
	assignments []Assignment
	data        datasource.DataSource
	log         *logger.Logger
	onProgress  func(done, total int)
}

// NewEngine creates an engine over the given config.
func NewEngine(config Config, log *logger.Logger) *Engine {
	return &Engine{
		config: config,
		log:    log,
	}
}

// AddAssignment appends a strategy with its symbols to the evaluation
// order.
func (e *Engine) AddAssignment(s strategy.Strategy, symbols ...string) {
	e.assignments = append(e.assignments, Assignment{Strategy: s, Symbols: symbols})
}

// SetDataSource sets the bar source for the run.
func (e *Engine) SetDataSource(ds datasource.DataSource) {
	e.data = ds
}

// OnProgress registers a callback invoked once per simulated day.
func (e *Engine) OnProgress(fn func(done, total int)) {
	e.onProgress = fn
}

func (e *Engine) preRunCheck() error {
	if len(e.assignments) == 0 {
		return errors.New(errors.ErrCodeNoStrategies, "no strategies assigned")
	}

	if e.data == nil {
		return errors.New(errors.ErrCodeNoDataSource, "no data source set")
	}

	return e.config.Validate()
}

// timeRange resolves the simulated period: configured bounds when set,
// otherwise the union of the data source's per-symbol ranges.
func (e *Engine) timeRange() (time.Time, time.Time, error) {
	symbols := e.data.Symbols()
	if len(symbols) == 0 {
		return time.Time{}, time.Time{}, errors.New(errors.ErrCodeDataNotFound, "data source has no bars")
	}

	var start, end time.Time

	for _, symbol := range symbols {
		first, last, ok := e.data.Range(symbol)
		if !ok {
			continue
		}

		if start.IsZero() || first.Before(start) {
			start = first
		}
		if end.IsZero() || last.After(end) {
			end = last
		}
	}

	if s, err := e.config.StartTime.Take(); err == nil {
		start = s
	}
	if t, err := e.config.EndTime.Take(); err == nil {
		end = t
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New(errors.ErrCodeInvalidTimeRange, "backtest end before start")
	}

	return start, end, nil
}

// Run executes the backtest. Signals rejected by the gate are skipped;
// strategy errors and internal faults abort the run with a typed error.
func (e *Engine) Run(ctx context.Context) (types.Result, error) {
	if err := e.preRunCheck(); err != nil {
		return types.Result{}, err
	}

	start, end, err := e.timeRange()
	if err != nil {
		return types.Result{}, err
	}

	led := ledger.New(e.config.InitialCapital)

	gate, err := risk.NewGate(e.config.Risk, e.config.CommissionRate, e.config.Slippage, led, e.log)
	if err != nil {
		return types.Result{}, err
	}

	totalDays := int(end.Sub(start).Hours()/24) + 1
	day := start

	for done := 0; !day.After(end); done++ {
		select {
		case <-ctx.Done():
			return types.Result{}, errors.Wrap(errors.ErrCodeInternal, "backtest canceled", ctx.Err())
		default:
		}

		if err := e.processDay(day, led, gate); err != nil {
			return types.Result{}, err
		}

		// One mark-to-market observation per simulated day, after all
		// strategies have acted.
		for _, symbol := range e.data.Symbols() {
			if price, ok := e.data.LastCloseAt(symbol, day); ok {
				led.MarkPrice(symbol, price)
			}
		}
		led.ObserveEquity()

		if e.onProgress != nil {
			e.onProgress(done+1, totalDays)
		}

		day = day.Add(24 * time.Hour)
	}

	return Evaluate(e.config.RiskFreeRate, led), nil
}

func (e *Engine) processDay(day time.Time, led *ledger.Ledger, gate *risk.Gate) error {
	for _, assignment := range e.assignments {
		for _, symbol := range assignment.Symbols {
			bars := e.data.BarsUpTo(symbol, day)
			if len(bars) == 0 {
				continue
			}

			sig, err := assignment.Strategy.GenerateSignal(bars)
			if err != nil {
				return errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err,
					"strategy %s failed on %s", assignment.Strategy.Name(), symbol)
			}

			signal, take := sig.Take()
			if take != nil {
				continue
			}

			trade, err := gate.Submit(signal, types.TradeReasonStrategy, assignment.Strategy.Name())
			if err != nil {
				if errors.HasCode(err, errors.ErrCodeInsufficientFunds) {
					e.log.Warn("signal dropped: insufficient funds",
						zap.String("symbol", symbol),
						zap.String("strategy", assignment.Strategy.Name()),
						zap.Float64("price", signal.Price),
						zap.Float64("volume", signal.Volume),
					)
					continue
				}

				if errors.IsRejection(err) || errors.HasCode(err, errors.ErrCodeInvalidSignal) {
					e.log.Debug("signal rejected",
						zap.String("symbol", symbol),
						zap.String("strategy", assignment.Strategy.Name()),
						zap.Error(err),
					)
					continue
				}

				return err
			}

			assignment.Strategy.OnTrade(trade)
		}
	}

	return nil
}
