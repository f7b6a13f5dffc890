package risk

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/quantframe/quantframe/internal/ledger"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

type GateTestSuite struct {
	suite.Suite
	ledger *ledger.Ledger
	gate   *Gate
}

func TestGateSuite(t *testing.T) {
	suite.Run(t, new(GateTestSuite))
}

func (suite *GateTestSuite) SetupTest() {
	suite.ledger = ledger.New(100000)

	limits := types.RiskLimits{
		MaxPositionSize:  5000,
		MaxCapital:       100000,
		MaxDrawdown:      0.1,
		PositionLimit:    1000,
		VolatilityLimit:  0.2,
		CorrelationLimit: 0.7,
	}

	gate, err := NewGate(limits, 0.0003, 0, suite.ledger, logger.NewNopLogger())
	suite.Require().NoError(err)
	suite.gate = gate
}

func buySignal(symbol string, price, volume float64) types.Signal {
	return types.Signal{
		Time:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Symbol: symbol,
		Action: types.ActionBuy,
		Price:  price,
		Volume: volume,
	}
}

func sellSignal(symbol string, price, volume float64) types.Signal {
	sig := buySignal(symbol, price, volume)
	sig.Action = types.ActionSell

	return sig
}

func (suite *GateTestSuite) TestNewGateValidatesLimits() {
	_, err := NewGate(types.RiskLimits{}, 0, 0, suite.ledger, logger.NewNopLogger())
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	_, err = NewGate(types.DefaultRiskLimits(), 0, 0, nil, logger.NewNopLogger())
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *GateTestSuite) TestApproveOrderOfChecks() {
	// A signal breaching both the per-symbol and the aggregate limit
	// must always report the per-symbol check.
	err := suite.gate.Approve(buySignal("AAPL", 10, 6000))
	suite.True(errors.HasCode(err, errors.ErrCodeRejectedPositionLimit))
}

func (suite *GateTestSuite) TestApprovePositionLimit() {
	suite.NoError(suite.gate.Approve(buySignal("AAPL", 10, 1000)))

	err := suite.gate.Approve(buySignal("AAPL", 10, 1001))
	suite.True(errors.HasCode(err, errors.ErrCodeRejectedPositionLimit))
}

func (suite *GateTestSuite) TestApproveRejectsShortSale() {
	_, err := suite.gate.Submit(buySignal("AAPL", 10, 100), types.TradeReasonStrategy, "test")
	suite.Require().NoError(err)

	err = suite.gate.Approve(sellSignal("AAPL", 10, 101))
	suite.True(errors.HasCode(err, errors.ErrCodeRejectedShortSale))

	suite.NoError(suite.gate.Approve(sellSignal("AAPL", 10, 100)))
}

func (suite *GateTestSuite) TestApproveAggregateLimit() {
	for _, symbol := range []string{"AAA", "BBB", "CCC", "DDD"} {
		_, err := suite.gate.Submit(buySignal(symbol, 1, 1000), types.TradeReasonStrategy, "test")
		suite.Require().NoError(err)
	}

	// 4000 held; 1001 more breaches the 5000 aggregate cap while the
	// per-symbol cap of 1000 would also fail, so use a fresh symbol at
	// exactly the per-symbol limit.
	err := suite.gate.Approve(buySignal("EEE", 1, 1000))
	suite.NoError(err)

	_, err = suite.gate.Submit(buySignal("EEE", 1, 1000), types.TradeReasonStrategy, "test")
	suite.Require().NoError(err)

	err = suite.gate.Approve(buySignal("FFF", 1, 1))
	suite.True(errors.HasCode(err, errors.ErrCodeRejectedAggregateLimit))
}

func (suite *GateTestSuite) TestApproveCapitalLimit() {
	err := suite.gate.Approve(buySignal("AAPL", 200, 501))
	suite.True(errors.HasCode(err, errors.ErrCodeRejectedCapitalLimit))
}

func (suite *GateTestSuite) TestApproveInsufficientFunds() {
	// Drain most of the capital first.
	_, err := suite.gate.Submit(buySignal("AAPL", 99, 1000), types.TradeReasonStrategy, "test")
	suite.Require().NoError(err)

	before := suite.ledger.Capital()
	positions := suite.ledger.Positions()

	err = suite.gate.Approve(buySignal("MSFT", 99, 1000))
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))

	// A rejected BUY leaves capital and positions unchanged.
	suite.Equal(before, suite.ledger.Capital())
	suite.Equal(positions, suite.ledger.Positions())
}

func (suite *GateTestSuite) TestFundsCheckCoversExecutedCost() {
	limits := types.RiskLimits{
		MaxPositionSize:  5000,
		MaxCapital:       60000,
		MaxDrawdown:      0.1,
		PositionLimit:    1000,
		VolatilityLimit:  0.2,
		CorrelationLimit: 0.7,
	}

	// Capital covers the signal-price notional (50,015) but not the
	// slippage-adjusted executed cost (50,065.015).
	short := ledger.New(50020)
	gate, err := NewGate(limits, 0.0003, 0.001, short, logger.NewNopLogger())
	suite.Require().NoError(err)

	err = gate.Approve(buySignal("AAPL", 50, 1000))
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))
	suite.InDelta(50020.0, short.Capital(), 1e-9)

	// With the executed cost covered, the booked trade never drives
	// capital negative.
	funded := ledger.New(50070)
	gate, err = NewGate(limits, 0.0003, 0.001, funded, logger.NewNopLogger())
	suite.Require().NoError(err)

	trade, err := gate.Submit(buySignal("AAPL", 50, 1000), types.TradeReasonStrategy, "test")
	suite.Require().NoError(err)
	suite.InDelta(50.05, trade.Price, 1e-9)
	suite.InDelta(4.985, funded.Capital(), 1e-6)
	suite.GreaterOrEqual(funded.Capital(), 0.0)
}

func (suite *GateTestSuite) TestApproveDrawdownLimit() {
	_, err := suite.gate.Submit(buySignal("AAPL", 100, 500), types.TradeReasonStrategy, "test")
	suite.Require().NoError(err)

	suite.ledger.MarkPrice("AAPL", 100)
	suite.ledger.ObserveEquity()

	// Price collapse drives equity 11%+ below its peak.
	suite.ledger.MarkPrice("AAPL", 75)
	suite.ledger.ObserveEquity()

	err = suite.gate.Approve(buySignal("MSFT", 10, 10))
	suite.True(errors.HasCode(err, errors.ErrCodeRejectedDrawdown))
}

func (suite *GateTestSuite) TestApproveVolatilityAndCorrelationHints() {
	sig := buySignal("AAPL", 10, 10)
	sig.Hints.Volatility = optional.Some(0.3)

	err := suite.gate.Approve(sig)
	suite.True(errors.HasCode(err, errors.ErrCodeRejectedVolatility))

	sig = buySignal("AAPL", 10, 10)
	sig.Hints.Correlation = optional.Some(-0.9)

	err = suite.gate.Approve(sig)
	suite.True(errors.HasCode(err, errors.ErrCodeRejectedCorrelation))

	// Hints inside the limits pass; absent hints are not evaluated.
	sig = buySignal("AAPL", 10, 10)
	sig.Hints.Volatility = optional.Some(0.1)
	sig.Hints.Correlation = optional.Some(0.5)
	suite.NoError(suite.gate.Approve(sig))
	suite.NoError(suite.gate.Approve(buySignal("AAPL", 10, 10)))
}

func (suite *GateTestSuite) TestApproveRejectsHoldAndInvalid() {
	sig := buySignal("AAPL", 10, 10)
	sig.Action = types.ActionHold
	suite.True(errors.HasCode(suite.gate.Approve(sig), errors.ErrCodeInvalidSignal))

	sig = buySignal("AAPL", 0, 10)
	suite.True(errors.HasCode(suite.gate.Approve(sig), errors.ErrCodeInvalidSignal))
}

func (suite *GateTestSuite) TestRecordAppliesSlippageAndCommission() {
	gate, err := NewGate(types.DefaultRiskLimits(), 0.0003, 0.0001, suite.ledger, logger.NewNopLogger())
	suite.Require().NoError(err)

	trade, err := gate.Submit(buySignal("AAPL", 100, 100), types.TradeReasonStrategy, "test")
	suite.NoError(err)

	suite.InDelta(100.01, trade.Price, 1e-9)
	suite.InDelta(100.01*100*0.0003, trade.Commission, 1e-9)
	suite.InDelta(100000-100.01*100-trade.Commission, trade.Capital, 1e-9)

	sell, err := gate.Submit(sellSignal("AAPL", 100, 100), types.TradeReasonStrategy, "test")
	suite.NoError(err)
	suite.InDelta(99.99, sell.Price, 1e-9)
}

func (suite *GateTestSuite) TestRecordExampleScenario() {
	// capital=100,000, commission=0.0003, slippage=0, BUY 1000 @ 50:
	// required = 50,015 <= max_capital, resulting capital = 49,985.
	trade, err := suite.gate.Submit(buySignal("AAPL", 50, 1000), types.TradeReasonStrategy, "test")
	suite.NoError(err)
	suite.InDelta(49985.0, trade.Capital, 1e-9)
}

func (suite *GateTestSuite) TestMetrics() {
	_, err := suite.gate.Submit(buySignal("AAPL", 10, 300), types.TradeReasonStrategy, "test")
	suite.Require().NoError(err)
	_, err = suite.gate.Submit(buySignal("MSFT", 10, 100), types.TradeReasonStrategy, "test")
	suite.Require().NoError(err)

	suite.ledger.ObserveEquity()

	metrics := suite.gate.Metrics()
	suite.InDelta(0.75, metrics.PositionConcentration["AAPL"], 1e-9)
	suite.InDelta(0.25, metrics.PositionConcentration["MSFT"], 1e-9)
	suite.InDelta(400.0/5000.0, metrics.CapitalUtilization, 1e-9)
	suite.InDelta(400.0, metrics.TotalPosition, 1e-9)
	suite.Equal(suite.ledger.Capital(), metrics.CurrentCapital)
	suite.GreaterOrEqual(metrics.CurrentDrawdown, 0.0)
}
