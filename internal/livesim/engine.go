// Package livesim runs a strategy against live quotes on a simulated
// ledger: no orders reach a venue, but sizing, gating and bookkeeping
// behave as they would in production.
package livesim

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/quantframe/quantframe/internal/backtest"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/ledger"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/risk"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/quantframe/quantframe/pkg/marketdata"
)

// Config drives one live simulation.
type Config struct {
	Symbols []string `yaml:"symbols" json:"symbols" validate:"min=1,dive,required"`

	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital" validate:"gt=0"`
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate" validate:"gte=0,lt=1"`
	Slippage       float64 `yaml:"slippage" json:"slippage" validate:"gte=0,lt=1"`
	RiskFreeRate   float64 `yaml:"risk_free_rate" json:"risk_free_rate" validate:"gte=0,lt=1"`

	// UpdateInterval is the quote polling period.
	UpdateInterval time.Duration `yaml:"update_interval" json:"update_interval" validate:"gt=0"`
	// MonitorInterval is the position scan period.
	MonitorInterval time.Duration `yaml:"monitor_interval" json:"monitor_interval" validate:"gt=0"`
	// ErrorBackoff is the extra wait after a failed quote fetch.
	ErrorBackoff time.Duration `yaml:"error_backoff" json:"error_backoff" validate:"gt=0"`
	// QueueSize bounds the poll-to-evaluate bar queue.
	QueueSize int `yaml:"queue_size" json:"queue_size" validate:"gt=0"`
	// HistoryLimit bounds the retained bar history per symbol. It must
	// cover the strategy's longest lookback window.
	HistoryLimit int `yaml:"history_limit" json:"history_limit" validate:"gt=0"`

	// PositionLimit is the fraction of capital deployable in total.
	PositionLimit float64 `yaml:"position_limit" json:"position_limit" validate:"gt=0,lte=1"`
	// SinglePositionLimit is the fraction of capital deployable per signal.
	SinglePositionLimit float64 `yaml:"single_position_limit" json:"single_position_limit" validate:"gt=0,lte=1"`
	// MaxDrawdown triggers the close-everything portfolio breach.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown" validate:"gt=0,lte=1"`

	Risk types.RiskLimits `yaml:"risk" json:"risk"`
}

// DefaultConfig returns the stock live-simulation settings for the
// given symbols.
func DefaultConfig(symbols ...string) Config {
	return Config{
		Symbols:             symbols,
		InitialCapital:      1_000_000,
		CommissionRate:      0.0003,
		Slippage:            0.0001,
		RiskFreeRate:        0.02,
		UpdateInterval:      time.Second,
		MonitorInterval:     time.Second,
		ErrorBackoff:        5 * time.Second,
		QueueSize:           64,
		HistoryLimit:        512,
		PositionLimit:       0.8,
		SinglePositionLimit: 0.2,
		MaxDrawdown:         0.2,
		Risk:                types.DefaultRiskLimits(),
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid livesim config", err)
	}

	return c.Risk.Validate()
}

// Engine runs three loops against a shared ledger: poll fetches quotes,
// evaluate turns them into gated trades, monitor enforces exits. The
// ledger persists across Start/Stop cycles and is cleared only by Reset.
type Engine struct {
	config   Config
	strategy strategy.Strategy
	provider marketdata.QuoteProvider
	log      *logger.Logger

	history *datasource.Memory
	ledger  *ledger.Ledger
	gate    *risk.Gate

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	queue   chan types.Bar
}

// NewEngine wires a live simulation. The ledger and gate are created
// once and survive engine restarts.
func NewEngine(config Config, s strategy.Strategy, provider marketdata.QuoteProvider, log *logger.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	led := ledger.New(config.InitialCapital)

	gate, err := risk.NewGate(config.Risk, config.CommissionRate, config.Slippage, led, log)
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:   config,
		strategy: s,
		provider: provider,
		log:      log,
		history:  datasource.NewMemory(),
		ledger:   led,
		gate:     gate,
	}, nil
}

// Status reports whether the loops are running.
func (e *Engine) Status() types.EngineStatus {
	if e.running.Load() {
		return types.EngineStatusRunning
	}

	return types.EngineStatusStopped
}

// Performance returns a snapshot of the run statistics so far.
func (e *Engine) Performance() types.Result {
	return backtest.Evaluate(e.config.RiskFreeRate, e.ledger)
}

// RiskMetrics returns the gate's current derived risk state.
func (e *Engine) RiskMetrics() types.RiskMetrics {
	return e.gate.Metrics()
}

// Start launches the poll, evaluate and monitor loops. It returns
// immediately; the loops run until Stop or context cancellation.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New(errors.ErrCodeEngineAlreadyRunning, "live simulation already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.queue = make(chan types.Bar, e.config.QueueSize)

	e.wg.Add(3)
	go e.pollLoop(runCtx)
	go e.evaluateLoop(runCtx)
	go e.monitorLoop(runCtx)

	e.log.Info("live simulation started",
		zap.Strings("symbols", e.config.Symbols),
		zap.String("strategy", e.strategy.Name()),
		zap.Duration("update_interval", e.config.UpdateInterval),
	)

	return nil
}

// Stop signals the loops to exit and waits for them. Positions and the
// equity curve survive; call Reset to clear them.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return errors.New(errors.ErrCodeEngineNotRunning, "live simulation not running")
	}

	e.cancel()
	e.wg.Wait()

	e.log.Info("live simulation stopped")

	return nil
}

// Reset clears the ledger. It fails while the engine runs.
func (e *Engine) Reset() error {
	if e.running.Load() {
		return errors.New(errors.ErrCodeEngineAlreadyRunning, "cannot reset a running simulation")
	}

	e.ledger.Reset()

	return nil
}

// pollLoop fetches the latest bar per symbol at the update interval and
// feeds the evaluate queue. Fetch failures back off and never terminate
// the loop.
func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, symbol := range e.config.Symbols {
			fetchCtx, cancel := context.WithTimeout(ctx, e.config.UpdateInterval)
			bar, err := e.provider.LatestBar(fetchCtx, symbol)
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}

				e.log.Warn("quote fetch failed, backing off",
					zap.String("symbol", symbol),
					zap.Duration("backoff", e.config.ErrorBackoff),
					zap.Error(err),
				)

				select {
				case <-ctx.Done():
					return
				case <-time.After(e.config.ErrorBackoff):
				}

				continue
			}

			select {
			case <-ctx.Done():
				return
			case e.queue <- bar:
			}
		}
	}
}

// evaluateLoop consumes polled bars, runs the strategy over the
// accumulated history, sizes any signal by the capital-fraction policy
// and submits it through the gate.
func (e *Engine) evaluateLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		var bar types.Bar

		select {
		case <-ctx.Done():
			return
		case bar = <-e.queue:
		}

		e.history.AddBars([]types.Bar{bar})
		e.history.Trim(e.config.HistoryLimit)
		e.ledger.MarkPrice(bar.Symbol, bar.Close)

		bars := e.history.BarsUpTo(bar.Symbol, bar.Time)

		sig, err := e.strategy.GenerateSignal(bars)
		if err != nil {
			e.log.Error("strategy evaluation failed",
				zap.String("symbol", bar.Symbol),
				zap.Error(err),
			)

			e.ledger.ObserveEquity()

			continue
		}

		if signal, take := sig.Take(); take == nil {
			e.submit(signal)
		}

		e.ledger.ObserveEquity()
	}
}

// submit sizes and gates one signal.
func (e *Engine) submit(signal types.Signal) {
	if signal.Action == types.ActionSell {
		// Exits close what the strategy holds; no sizing involved.
		held := e.ledger.Position(signal.Symbol)
		if held <= 0 {
			return
		}

		signal.Volume = math.Min(signal.Volume, held)
	} else {
		signal.Volume = e.sizePosition(signal)
	}

	if signal.Volume <= 0 {
		return
	}

	trade, err := e.gate.Submit(signal, types.TradeReasonStrategy, e.strategy.Name())
	if err != nil {
		if errors.IsRejection(err) || errors.HasCode(err, errors.ErrCodeInsufficientFunds) ||
			errors.HasCode(err, errors.ErrCodeInvalidSignal) {
			e.log.Debug("signal rejected",
				zap.String("symbol", signal.Symbol),
				zap.Error(err),
			)

			return
		}

		e.log.Error("trade submission failed",
			zap.String("symbol", signal.Symbol),
			zap.Error(err),
		)

		return
	}

	e.strategy.OnTrade(trade)
}

// sizePosition converts signal strength into volume:
// min(capital*position_limit, capital*single_position_limit) * |strength|,
// divided by price.
func (e *Engine) sizePosition(signal types.Signal) float64 {
	if signal.Price <= 0 {
		return 0
	}

	capital := e.ledger.Capital()
	size := math.Min(capital*e.config.PositionLimit, capital*e.config.SinglePositionLimit)
	size *= math.Abs(signal.Strength)

	return size / signal.Price
}

// monitorLoop scans open positions for stop-loss and take-profit
// breaches and force-closes them, and closes everything when the
// portfolio drawdown limit is breached. Force-closes reduce exposure,
// so they bypass the approval checks and book directly.
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.checkExits()
		e.checkPortfolioDrawdown()
	}
}

func (e *Engine) checkExits() {
	thresholds := e.strategy.Thresholds()

	for symbol, volume := range e.ledger.Positions() {
		entry, ok := e.ledger.AvgEntryPrice(symbol)
		if !ok || entry <= 0 {
			continue
		}

		current, ok := e.ledger.LastPrice(symbol)
		if !ok {
			continue
		}

		ret := (current - entry) / entry

		switch {
		case ret < -thresholds.StopLoss:
			e.forceClose(symbol, volume, current, types.TradeReasonStopLoss)
		case ret > thresholds.TakeProfit:
			e.forceClose(symbol, volume, current, types.TradeReasonTakeProfit)
		}
	}
}

func (e *Engine) checkPortfolioDrawdown() {
	latest, peak, ok := e.ledger.LatestEquity()
	if !ok || peak <= 0 {
		return
	}

	if (peak-latest)/peak <= e.config.MaxDrawdown {
		return
	}

	e.log.Warn("portfolio drawdown breached, closing all positions",
		zap.Float64("latest_equity", latest),
		zap.Float64("peak_equity", peak),
		zap.Float64("limit", e.config.MaxDrawdown),
	)

	for symbol, volume := range e.ledger.Positions() {
		price, ok := e.ledger.LastPrice(symbol)
		if !ok {
			continue
		}

		e.forceClose(symbol, volume, price, types.TradeReasonRiskBreach)
	}
}

func (e *Engine) forceClose(symbol string, volume, price float64, reason string) {
	// The monitor works off a position snapshot; the evaluate loop may
	// have closed some or all of it since. Sell only what is still held.
	held := e.ledger.Position(symbol)
	if held <= 0 {
		return
	}

	volume = math.Min(volume, held)

	trade, err := e.gate.Record(types.Signal{
		Time:   time.Now().UTC(),
		Symbol: symbol,
		Action: types.ActionSell,
		Price:  price,
		Volume: volume,
	}, reason, e.strategy.Name())
	if err != nil {
		e.log.Error("force close failed",
			zap.String("symbol", symbol),
			zap.String("reason", reason),
			zap.Error(err),
		)

		return
	}

	e.log.Info("position force closed",
		zap.String("symbol", symbol),
		zap.String("reason", reason),
		zap.Float64("price", trade.Price),
		zap.Float64("volume", trade.Volume),
	)

	e.strategy.OnTrade(trade)
}
