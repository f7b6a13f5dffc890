package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

type StrategyTestSuite struct {
	suite.Suite
}

func TestStrategySuite(t *testing.T) {
	suite.Run(t, new(StrategyTestSuite))
}

func barsFromCloses(symbol string, closes []float64) []types.Bar {
	bars := make([]types.Bar, 0, len(closes))
	for i, c := range closes {
		bars = append(bars, types.Bar{
			Time:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Symbol: symbol,
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 1000,
		})
	}

	return bars
}

func (suite *StrategyTestSuite) TestRegistry() {
	suite.Equal([]string{NameBreakout, NameMeanReversion, NameMovingAverage}, Names())

	_, err := New("nope", Params{})
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyNotFound))

	s, err := New(NameMovingAverage, Params{"short_window": 2, "long_window": 4})
	suite.NoError(err)
	suite.Equal(NameMovingAverage, s.Name())
}

func (suite *StrategyTestSuite) TestParams() {
	p := Params{"a": 3, "b": 2.5, "c": "x"}

	i, err := p.Int("a", 1)
	suite.NoError(err)
	suite.Equal(3, i)

	i, err = p.Int("missing", 7)
	suite.NoError(err)
	suite.Equal(7, i)

	_, err = p.Int("b", 1)
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyConfigError))

	f, err := p.Float("b", 0)
	suite.NoError(err)
	suite.Equal(2.5, f)

	_, err = p.Float("c", 0)
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyConfigError))
}

func (suite *StrategyTestSuite) TestMovingAverageCross() {
	s, err := New(NameMovingAverage, Params{"short_window": 2, "long_window": 4, "position_size": 10})
	suite.Require().NoError(err)

	// Downtrend then a sharp rally: short MA crosses above long MA on
	// the last bar.
	closes := []float64{100, 98, 96, 94, 92, 110}
	sig, err := s.GenerateSignal(barsFromCloses("AAPL", closes))
	suite.NoError(err)
	suite.Require().True(sig.IsSome())
	suite.Equal(types.ActionBuy, sig.Unwrap().Action)
	suite.Equal(110.0, sig.Unwrap().Price)
	suite.Equal(10.0, sig.Unwrap().Volume)

	// Window shorter than long_window+1 yields no signal.
	sig, err = s.GenerateSignal(barsFromCloses("AAPL", closes[:4]))
	suite.NoError(err)
	suite.True(sig.IsNone())
}

func (suite *StrategyTestSuite) TestMovingAverageSellRequiresPosition() {
	s, err := New(NameMovingAverage, Params{"short_window": 2, "long_window": 4, "position_size": 10})
	suite.Require().NoError(err)

	// Uptrend then a crash: death cross with nothing held.
	closes := []float64{100, 102, 104, 106, 108, 80}
	sig, err := s.GenerateSignal(barsFromCloses("AAPL", closes))
	suite.NoError(err)
	suite.True(sig.IsNone())

	// After a buy fill the same window produces the SELL.
	s.OnTrade(types.Trade{Symbol: "AAPL", Action: types.ActionBuy, Volume: 10})
	sig, err = s.GenerateSignal(barsFromCloses("AAPL", closes))
	suite.NoError(err)
	suite.Require().True(sig.IsSome())
	suite.Equal(types.ActionSell, sig.Unwrap().Action)
}

func (suite *StrategyTestSuite) TestMovingAverageConfigErrors() {
	_, err := New(NameMovingAverage, Params{"short_window": 20, "long_window": 5})
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyConfigError))

	_, err = New(NameMovingAverage, Params{"position_size": -1})
	suite.True(errors.HasCode(err, errors.ErrCodeStrategyConfigError))
}

func (suite *StrategyTestSuite) TestMeanReversionBands() {
	s, err := New(NameMeanReversion, Params{"period": 4, "std_dev": 1.5, "position_size": 5})
	suite.Require().NoError(err)

	// Flat series then a collapse well below the lower band.
	closes := []float64{100, 100, 100, 70}
	sig, err := s.GenerateSignal(barsFromCloses("AAPL", closes))
	suite.NoError(err)
	suite.Require().True(sig.IsSome())
	suite.Equal(types.ActionBuy, sig.Unwrap().Action)
	suite.Greater(sig.Unwrap().Strength, 0.0)
	suite.LessOrEqual(sig.Unwrap().Strength, 1.0)

	// A spike above the upper band with a position held sells.
	s.OnTrade(types.Trade{Symbol: "AAPL", Action: types.ActionBuy, Volume: 5})
	closes = []float64{100, 100, 100, 130}
	sig, err = s.GenerateSignal(barsFromCloses("AAPL", closes))
	suite.NoError(err)
	suite.Require().True(sig.IsSome())
	suite.Equal(types.ActionSell, sig.Unwrap().Action)

	// A flat window has zero deviation and stays quiet.
	sig, err = s.GenerateSignal(barsFromCloses("AAPL", []float64{100, 100, 100, 100}))
	suite.NoError(err)
	suite.True(sig.IsNone())
}

func (suite *StrategyTestSuite) TestBreakoutChannel() {
	s, err := New(NameBreakout, Params{"period": 3, "threshold": 0.02, "position_size": 5})
	suite.Require().NoError(err)

	// Close clears the prior 3-bar high (102) by more than 2%.
	bars := barsFromCloses("AAPL", []float64{100, 101, 102, 105})
	sig, err := s.GenerateSignal(bars)
	suite.NoError(err)
	suite.Require().True(sig.IsSome())
	suite.Equal(types.ActionBuy, sig.Unwrap().Action)

	// Inside the channel: no signal.
	bars = barsFromCloses("AAPL", []float64{100, 101, 102, 103})
	sig, err = s.GenerateSignal(bars)
	suite.NoError(err)
	suite.True(sig.IsNone())

	// Breakdown below the rolling low sells only when holding.
	bars = barsFromCloses("AAPL", []float64{100, 101, 102, 95})
	sig, err = s.GenerateSignal(bars)
	suite.NoError(err)
	suite.True(sig.IsNone())

	s.OnTrade(types.Trade{Symbol: "AAPL", Action: types.ActionBuy, Volume: 5})
	sig, err = s.GenerateSignal(bars)
	suite.NoError(err)
	suite.Require().True(sig.IsSome())
	suite.Equal(types.ActionSell, sig.Unwrap().Action)
}

func (suite *StrategyTestSuite) TestThresholds() {
	s, err := New(NameBreakout, Params{"stop_loss": 0.05, "take_profit": 0.15})
	suite.Require().NoError(err)
	suite.Equal(ExitThresholds{StopLoss: 0.05, TakeProfit: 0.15}, s.Thresholds())

	s, err = New(NameMeanReversion, Params{})
	suite.Require().NoError(err)
	suite.Equal(ExitThresholds{StopLoss: 0.1, TakeProfit: 0.2}, s.Thresholds())
}

func (suite *StrategyTestSuite) TestVolatilityHintPresent() {
	s, err := New(NameMeanReversion, Params{"period": 4, "std_dev": 1, "position_size": 5})
	suite.Require().NoError(err)

	closes := []float64{100, 101, 99, 102, 80}
	sig, err := s.GenerateSignal(barsFromCloses("AAPL", closes))
	suite.NoError(err)
	suite.Require().True(sig.IsSome())
	suite.True(sig.Unwrap().Hints.Volatility.IsSome())
	suite.Greater(sig.Unwrap().Hints.Volatility.Unwrap(), 0.0)
}
