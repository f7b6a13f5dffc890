package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantframe/quantframe/internal/backtest"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

type OptimizerTestSuite struct {
	suite.Suite
	data   *datasource.Memory
	config backtest.Config
}

func TestOptimizerSuite(t *testing.T) {
	suite.Run(t, new(OptimizerTestSuite))
}

func (suite *OptimizerTestSuite) SetupTest() {
	// 30 daily bars oscillating around 100 so band strategies have
	// something to trade.
	bars := make([]types.Bar, 0, 30)
	for i := 0; i < 30; i++ {
		price := 100.0
		switch i % 6 {
		case 2:
			price = 92
		case 5:
			price = 108
		}

		bars = append(bars, types.Bar{
			Time:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Symbol: "AAPL",
			Open:   price, High: price, Low: price, Close: price,
			Volume: 1000,
		})
	}

	suite.data = datasource.NewMemoryFromBars(bars)

	suite.config = backtest.DefaultConfig()
	suite.config.InitialCapital = 100000
}

func (suite *OptimizerTestSuite) newOptimizer(metric TargetMetric) *Optimizer {
	o, err := New(suite.config, strategy.NameMeanReversion, []string{"AAPL"}, suite.data, metric, logger.NewNopLogger())
	suite.Require().NoError(err)
	o.SetParallelism(2)

	return o
}

func (suite *OptimizerTestSuite) TestNewValidation() {
	_, err := New(suite.config, strategy.NameMeanReversion, []string{"AAPL"}, suite.data, "accuracy", logger.NewNopLogger())
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	_, err = New(suite.config, strategy.NameMeanReversion, nil, suite.data, MetricSharpeRatio, logger.NewNopLogger())
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *OptimizerTestSuite) TestCombinations() {
	combos := combinations(Grid{
		"a": {1, 2, 3},
		"b": {"x", "y"},
	})

	suite.Len(combos, 6)

	// Sorted-key expansion: "a" varies slowest.
	suite.Equal(strategy.Params{"a": 1, "b": "x"}, combos[0])
	suite.Equal(strategy.Params{"a": 1, "b": "y"}, combos[1])
	suite.Equal(strategy.Params{"a": 3, "b": "y"}, combos[5])

	suite.Empty(combinations(Grid{"a": {}}))
	suite.Len(combinations(Grid{}), 1)
}

func (suite *OptimizerTestSuite) TestMetricOrdering() {
	suite.False(MetricSharpeRatio.ascending())
	suite.True(MetricMaxDrawdown.ascending())

	shallow := types.Result{MaxDrawdown: 0.1}
	deep := types.Result{MaxDrawdown: 0.2}
	suite.Greater(MetricMaxDrawdown.score(shallow), MetricMaxDrawdown.score(deep))
}

func (suite *OptimizerTestSuite) TestGridSearchCoversProduct() {
	o := suite.newOptimizer(MetricTotalReturn)

	best, trials, err := o.GridSearch(context.Background(), Grid{
		"period":  {4, 6},
		"std_dev": {1.0, 1.5},
	})
	suite.Require().NoError(err)

	suite.Len(trials, 4)
	suite.Equal(best, trials[0])

	for i := 1; i < len(trials); i++ {
		suite.GreaterOrEqual(trials[i-1].Result.TotalReturn, trials[i].Result.TotalReturn)
	}
}

func (suite *OptimizerTestSuite) TestGridSearchDropsInvalidCombinations() {
	o := suite.newOptimizer(MetricSharpeRatio)

	// period 1 fails strategy construction; the other combination
	// still ranks.
	_, trials, err := o.GridSearch(context.Background(), Grid{
		"period": {1, 5},
	})
	suite.Require().NoError(err)
	suite.Len(trials, 1)
	suite.Equal(5, trials[0].Params["period"])
}

func (suite *OptimizerTestSuite) TestGridSearchNoValidTrials() {
	o := suite.newOptimizer(MetricSharpeRatio)

	_, _, err := o.GridSearch(context.Background(), Grid{
		"period": {0, 1},
	})
	suite.True(errors.HasCode(err, errors.ErrCodeNoValidTrials))
}

func (suite *OptimizerTestSuite) TestGridSearchEmptyGrid() {
	o := suite.newOptimizer(MetricSharpeRatio)

	_, _, err := o.GridSearch(context.Background(), Grid{"period": {}})
	suite.True(errors.HasCode(err, errors.ErrCodeEmptyGrid))
}

func (suite *OptimizerTestSuite) TestCrossValidate() {
	o := suite.newOptimizer(MetricTotalReturn)

	_, _, err := o.CrossValidate(context.Background(), Grid{"period": {4}}, 1)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidFoldCount))

	best, final, err := o.CrossValidate(context.Background(), Grid{
		"period":  {4, 6},
		"std_dev": {1.0, 2.0},
	}, 2)
	suite.Require().NoError(err)

	suite.NotNil(best.Params["period"])
	suite.GreaterOrEqual(best.StdScore, 0.0)

	// The winner is re-run over the whole range.
	suite.Len(final.EquityCurve, 30)
}

func (suite *OptimizerTestSuite) TestSplitFoldsAreContiguous() {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 29)

	folds := splitFolds(start, end, 3)
	suite.Require().Len(folds, 3)

	suite.Equal(start, folds[0].start)
	suite.Equal(end, folds[2].end)

	for i := 1; i < len(folds); i++ {
		suite.True(folds[i].start.After(folds[i-1].end))
	}
}
