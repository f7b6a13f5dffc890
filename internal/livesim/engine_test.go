package livesim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/quantframe/quantframe/pkg/marketdata"
)

// buyOnce buys with full strength on the first bar it sees and then
// holds, so tests can drive exits purely through prices.
type buyOnce struct {
	mu         sync.Mutex
	bought     bool
	thresholds strategy.ExitThresholds
	trades     []types.Trade
}

func (s *buyOnce) Name() string { return "buy_once" }

func (s *buyOnce) GenerateSignal(bars []types.Bar) (optional.Option[types.Signal], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bought {
		return optional.None[types.Signal](), nil
	}

	last := bars[len(bars)-1]

	return optional.Some(types.Signal{
		Time:     last.Time,
		Symbol:   last.Symbol,
		Action:   types.ActionBuy,
		Price:    last.Close,
		Strength: 1,
	}), nil
}

func (s *buyOnce) OnTrade(trade types.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trade.Action == types.ActionBuy {
		s.bought = true
	}

	s.trades = append(s.trades, trade)
}

func (s *buyOnce) Thresholds() strategy.ExitThresholds { return s.thresholds }

func (s *buyOnce) tradeReasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	reasons := make([]string, 0, len(s.trades))
	for _, t := range s.trades {
		reasons = append(reasons, t.Reason)
	}

	return reasons
}

type LiveSimTestSuite struct {
	suite.Suite
	config   Config
	provider *marketdata.SimProvider
}

func TestLiveSimSuite(t *testing.T) {
	suite.Run(t, new(LiveSimTestSuite))
}

func (suite *LiveSimTestSuite) SetupTest() {
	suite.config = DefaultConfig("BTCUSDT")
	suite.config.InitialCapital = 100000
	suite.config.CommissionRate = 0
	suite.config.Slippage = 0
	suite.config.UpdateInterval = 5 * time.Millisecond
	suite.config.MonitorInterval = 5 * time.Millisecond
	suite.config.ErrorBackoff = 5 * time.Millisecond

	// A zero-step walk keeps prices exactly where SetPrice pins them.
	suite.provider = marketdata.NewSimProvider(1, 100, 0)
	suite.provider.SetPrice("BTCUSDT", 100)
}

func (suite *LiveSimTestSuite) newEngine(s strategy.Strategy) *Engine {
	engine, err := NewEngine(suite.config, s, suite.provider, logger.NewNopLogger())
	suite.Require().NoError(err)

	return engine
}

func (suite *LiveSimTestSuite) TestStateMachine() {
	engine := suite.newEngine(&buyOnce{})

	suite.Equal(types.EngineStatusStopped, engine.Status())
	suite.True(errors.HasCode(engine.Stop(), errors.ErrCodeEngineNotRunning))

	suite.Require().NoError(engine.Start(context.Background()))
	suite.Equal(types.EngineStatusRunning, engine.Status())
	suite.True(errors.HasCode(engine.Start(context.Background()), errors.ErrCodeEngineAlreadyRunning))
	suite.True(errors.HasCode(engine.Reset(), errors.ErrCodeEngineAlreadyRunning))

	suite.Require().NoError(engine.Stop())
	suite.Equal(types.EngineStatusStopped, engine.Status())
}

func (suite *LiveSimTestSuite) TestBuySizedByCapitalFraction() {
	s := &buyOnce{thresholds: strategy.ExitThresholds{StopLoss: 0.5, TakeProfit: 0.5}}
	engine := suite.newEngine(s)

	suite.Require().NoError(engine.Start(context.Background()))
	defer func() { _ = engine.Stop() }()

	// min(0.8, 0.2) * 100000 / 100 = 200 units.
	suite.Require().Eventually(func() bool {
		return len(engine.Performance().Trades) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	perf := engine.Performance()
	suite.Equal(types.ActionBuy, perf.Trades[0].Action)
	suite.InDelta(200.0, perf.Trades[0].Volume, 1e-9)
	suite.NotEmpty(perf.EquityCurve)
}

func (suite *LiveSimTestSuite) TestStopLossForceCloses() {
	s := &buyOnce{thresholds: strategy.ExitThresholds{StopLoss: 0.1, TakeProfit: 5}}
	engine := suite.newEngine(s)

	suite.Require().NoError(engine.Start(context.Background()))
	defer func() { _ = engine.Stop() }()

	suite.Require().Eventually(func() bool {
		return len(engine.Performance().Trades) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// A 20% drop breaches the 10% stop.
	suite.provider.SetPrice("BTCUSDT", 80)

	suite.Require().Eventually(func() bool {
		for _, reason := range s.tradeReasons() {
			if reason == types.TradeReasonStopLoss {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	perf := engine.Performance()
	suite.Equal(types.ActionSell, perf.Trades[len(perf.Trades)-1].Action)
}

func (suite *LiveSimTestSuite) TestTakeProfitForceCloses() {
	s := &buyOnce{thresholds: strategy.ExitThresholds{StopLoss: 0.5, TakeProfit: 0.1}}
	engine := suite.newEngine(s)

	suite.Require().NoError(engine.Start(context.Background()))
	defer func() { _ = engine.Stop() }()

	suite.Require().Eventually(func() bool {
		return len(engine.Performance().Trades) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	suite.provider.SetPrice("BTCUSDT", 120)

	suite.Require().Eventually(func() bool {
		for _, reason := range s.tradeReasons() {
			if reason == types.TradeReasonTakeProfit {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func (suite *LiveSimTestSuite) TestDrawdownBreachClosesAll() {
	// Exit thresholds wide open so only the portfolio check can fire.
	s := &buyOnce{thresholds: strategy.ExitThresholds{StopLoss: 5, TakeProfit: 5}}
	suite.config.MaxDrawdown = 0.02

	engine := suite.newEngine(s)

	suite.Require().NoError(engine.Start(context.Background()))
	defer func() { _ = engine.Stop() }()

	suite.Require().Eventually(func() bool {
		return len(engine.Performance().Trades) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// 200 units bought at 100; a drop to 80 takes equity down 4%.
	suite.provider.SetPrice("BTCUSDT", 80)

	suite.Require().Eventually(func() bool {
		for _, reason := range s.tradeReasons() {
			if reason == types.TradeReasonRiskBreach {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	metrics := engine.RiskMetrics()
	suite.Zero(metrics.TotalPosition)
}

func (suite *LiveSimTestSuite) TestHistoryStaysBounded() {
	suite.config.HistoryLimit = 4

	s := &buyOnce{thresholds: strategy.ExitThresholds{StopLoss: 5, TakeProfit: 5}}
	engine := suite.newEngine(s)

	suite.Require().NoError(engine.Start(context.Background()))
	defer func() { _ = engine.Stop() }()

	// Equity is observed once per consumed bar, so a curve well past the
	// limit proves the history has been trimmed along the way.
	suite.Require().Eventually(func() bool {
		return len(engine.Performance().EquityCurve) >= 10
	}, 2*time.Second, 5*time.Millisecond)

	bars := engine.history.BarsUpTo("BTCUSDT", time.Now().Add(time.Hour))
	suite.NotEmpty(bars)
	suite.LessOrEqual(len(bars), suite.config.HistoryLimit)
}

func (suite *LiveSimTestSuite) TestResetClearsLedger() {
	s := &buyOnce{thresholds: strategy.ExitThresholds{StopLoss: 0.5, TakeProfit: 0.5}}
	engine := suite.newEngine(s)

	suite.Require().NoError(engine.Start(context.Background()))

	suite.Require().Eventually(func() bool {
		return len(engine.Performance().Trades) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	suite.Require().NoError(engine.Stop())
	suite.Require().NoError(engine.Reset())

	perf := engine.Performance()
	suite.Empty(perf.Trades)
	suite.Empty(perf.EquityCurve)
}
