// Package optimizer searches strategy parameter space by running
// independent backtest trials, either over a plain grid or with
// time-fold cross-validation.
package optimizer

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantframe/quantframe/internal/backtest"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// TargetMetric selects the Result field trials are ranked by.
type TargetMetric string

const (
	MetricSharpeRatio TargetMetric = "sharpe_ratio"
	MetricTotalReturn TargetMetric = "total_return"
	MetricWinRate     TargetMetric = "win_rate"
	MetricMaxDrawdown TargetMetric = "max_drawdown"
)

// Validate checks the metric name.
func (m TargetMetric) Validate() error {
	switch m {
	case MetricSharpeRatio, MetricTotalReturn, MetricWinRate, MetricMaxDrawdown:
		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidParameter, "unknown target metric %q", string(m))
	}
}

// ascending reports whether smaller is better for this metric.
func (m TargetMetric) ascending() bool {
	return m == MetricMaxDrawdown
}

// value extracts the metric from a result.
func (m TargetMetric) value(result types.Result) float64 {
	switch m {
	case MetricTotalReturn:
		return result.TotalReturn
	case MetricWinRate:
		return result.WinRate
	case MetricMaxDrawdown:
		return result.MaxDrawdown
	default:
		return result.SharpeRatio
	}
}

// score maps the metric onto a maximize-me scale, negating cost-like
// metrics.
func (m TargetMetric) score(result types.Result) float64 {
	if m.ascending() {
		return -m.value(result)
	}

	return m.value(result)
}

// Grid maps a parameter name to its candidate values. The search covers
// the full Cartesian product.
type Grid map[string][]any

// Trial is one evaluated parameter combination.
type Trial struct {
	Params strategy.Params
	Result types.Result
}

// Optimizer runs parameter searches for one strategy over a shared,
// read-only data source. Every trial gets its own ledger via a fresh
// backtest engine run.
type Optimizer struct {
	config       backtest.Config
	strategyName string
	symbols      []string
	data         datasource.DataSource
	metric       TargetMetric
	parallelism  int
	log          *logger.Logger
}

// New creates an optimizer. The config's own strategy assignments are
// ignored; trials are built from the grid.
func New(config backtest.Config, strategyName string, symbols []string, data datasource.DataSource, metric TargetMetric, log *logger.Logger) (*Optimizer, error) {
	if err := metric.Validate(); err != nil {
		return nil, err
	}

	if len(symbols) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "optimizer needs at least one symbol")
	}

	return &Optimizer{
		config:       config,
		strategyName: strategyName,
		symbols:      symbols,
		data:         data,
		metric:       metric,
		parallelism:  runtime.NumCPU(),
		log:          log,
	}, nil
}

// SetParallelism caps the number of concurrently running trials.
func (o *Optimizer) SetParallelism(n int) {
	if n > 0 {
		o.parallelism = n
	}
}

// combinations expands the grid into the Cartesian product of its value
// lists, in deterministic sorted-key order.
func combinations(grid Grid) []strategy.Params {
	keys := make([]string, 0, len(grid))
	for key, values := range grid {
		if len(values) == 0 {
			return nil
		}

		keys = append(keys, key)
	}

	sort.Strings(keys)

	combos := []strategy.Params{{}}

	for _, key := range keys {
		next := make([]strategy.Params, 0, len(combos)*len(grid[key]))

		for _, combo := range combos {
			for _, value := range grid[key] {
				expanded := make(strategy.Params, len(combo)+1)
				for k, v := range combo {
					expanded[k] = v
				}

				expanded[key] = value
				next = append(next, expanded)
			}
		}

		combos = next
	}

	return combos
}

// run executes one isolated backtest over [start, end] with the given
// parameters. Trials log through a nop logger to keep search output
// readable.
func (o *Optimizer) run(ctx context.Context, params strategy.Params, start, end optional.Option[time.Time]) (types.Result, error) {
	s, err := strategy.New(o.strategyName, params)
	if err != nil {
		return types.Result{}, err
	}

	config := o.config
	config.Strategies = nil
	config.StartTime = start
	config.EndTime = end

	engine := backtest.NewEngine(config, logger.NewNopLogger())
	engine.AddAssignment(s, o.symbols...)
	engine.SetDataSource(o.data)

	return engine.Run(ctx)
}

// GridSearch evaluates every combination in the grid and returns the
// best trial plus all valid trials ordered best-first. Combinations
// whose trial fails are dropped from the ranking, never aborting the
// search.
func (o *Optimizer) GridSearch(ctx context.Context, grid Grid) (Trial, []Trial, error) {
	combos := combinations(grid)
	if len(combos) == 0 {
		return Trial{}, nil, errors.New(errors.ErrCodeEmptyGrid, "parameter grid is empty")
	}

	results := make([]*types.Result, len(combos))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.parallelism)

	for i, params := range combos {
		group.Go(func() error {
			result, err := o.run(groupCtx, params, o.config.StartTime, o.config.EndTime)
			if err != nil {
				o.log.Warn("trial failed, dropping from ranking",
					zap.Any("params", map[string]any(params)),
					zap.Error(err),
				)

				return nil
			}

			results[i] = &result

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return Trial{}, nil, err
	}

	trials := make([]Trial, 0, len(combos))
	for i, result := range results {
		if result == nil {
			continue
		}

		trials = append(trials, Trial{Params: combos[i], Result: *result})
	}

	if len(trials) == 0 {
		return Trial{}, nil, errors.New(errors.ErrCodeNoValidTrials, "no parameter combination produced a valid trial")
	}

	// Stable sort keeps grid order as the tie-break, so ranking is
	// deterministic across runs.
	sort.SliceStable(trials, func(a, b int) bool {
		return o.metric.score(trials[a].Result) > o.metric.score(trials[b].Result)
	})

	return trials[0], trials, nil
}
