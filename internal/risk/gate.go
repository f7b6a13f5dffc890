// Package risk implements the gate that every proposed trade must pass
// before it may mutate the ledger.
package risk

import (
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantframe/quantframe/internal/ledger"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// Gate is the risk-approval step in front of the ledger. Approve is a
// predicate over (proposed trade, ledger state, strategy risk hints);
// Record is the sole path through which approved trades are booked.
//
// The checks run in a fixed order so a trade that fails several limits
// always reports the same rejection reason:
//
//  1. per-symbol position limit (and the no-short rule for SELLs)
//  2. aggregate position limit
//  3. capital limit per trade, then available funds
//  4. drawdown limit against recorded equity
//  5. volatility hint limit
//  6. correlation hint limit
type Gate struct {
	limits         types.RiskLimits
	commissionRate float64
	slippage       float64
	ledger         *ledger.Ledger
	log            *logger.Logger
}

// NewGate creates a gate over the given ledger. The limits are validated
// once here and read-only afterwards.
func NewGate(limits types.RiskLimits, commissionRate, slippage float64, l *ledger.Ledger, log *logger.Logger) (*Gate, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	if l == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "gate requires a ledger")
	}

	return &Gate{
		limits:         limits,
		commissionRate: commissionRate,
		slippage:       slippage,
		ledger:         l,
		log:            log,
	}, nil
}

// Approve returns nil when the proposed trade passes every check, or a
// rejection error carrying the first failing check's code. HOLD signals
// are rejected as invalid; they should never reach the gate.
func (g *Gate) Approve(sig types.Signal) error {
	if sig.Action != types.ActionBuy && sig.Action != types.ActionSell {
		return errors.Newf(errors.ErrCodeInvalidSignal, "action %q cannot be gated", sig.Action)
	}

	if sig.Price <= 0 || sig.Volume <= 0 {
		return errors.Newf(errors.ErrCodeInvalidSignal, "signal for %s has non-positive price or volume", sig.Symbol)
	}

	if err := g.checkPositionLimit(sig); err != nil {
		return err
	}

	if err := g.checkAggregateLimit(sig); err != nil {
		return err
	}

	if err := g.checkCapitalLimit(sig); err != nil {
		return err
	}

	if err := g.checkDrawdownLimit(); err != nil {
		return err
	}

	if err := g.checkVolatilityLimit(sig); err != nil {
		return err
	}

	return g.checkCorrelationLimit(sig)
}

func (g *Gate) checkPositionLimit(sig types.Signal) error {
	held := g.ledger.Position(sig.Symbol)

	if sig.Action == types.ActionBuy {
		if held+sig.Volume > g.limits.PositionLimit {
			return errors.Newf(errors.ErrCodeRejectedPositionLimit,
				"position %.2f+%.2f exceeds per-symbol limit %.2f for %s",
				held, sig.Volume, g.limits.PositionLimit, sig.Symbol)
		}

		return nil
	}

	// Short selling is not modeled: a SELL past the held volume is an
	// invariant violation, not a short entry.
	if held-sig.Volume < 0 {
		return errors.Newf(errors.ErrCodeRejectedShortSale,
			"sell of %.2f exceeds held %.2f for %s", sig.Volume, held, sig.Symbol)
	}

	return nil
}

func (g *Gate) checkAggregateLimit(sig types.Signal) error {
	if sig.Action != types.ActionBuy {
		return nil
	}

	total := g.ledger.TotalPosition()
	if total+sig.Volume > g.limits.MaxPositionSize {
		return errors.Newf(errors.ErrCodeRejectedAggregateLimit,
			"aggregate position %.2f+%.2f exceeds limit %.2f",
			total, sig.Volume, g.limits.MaxPositionSize)
	}

	return nil
}

func (g *Gate) checkCapitalLimit(sig types.Signal) error {
	if sig.Action != types.ActionBuy {
		return nil
	}

	required := sig.Price * sig.Volume * (1 + g.commissionRate)
	if required > g.limits.MaxCapital {
		return errors.Newf(errors.ErrCodeRejectedCapitalLimit,
			"required capital %.2f exceeds per-trade limit %.2f", required, g.limits.MaxCapital)
	}

	// The funds check covers what Record will actually debit: the
	// slippage-adjusted executed price plus commission on that notional.
	executedCost := sig.Price * (1 + g.slippage) * sig.Volume * (1 + g.commissionRate)
	if executedCost > g.ledger.Capital() {
		return errors.Newf(errors.ErrCodeInsufficientFunds,
			"required capital %.2f exceeds available %.2f", executedCost, g.ledger.Capital())
	}

	return nil
}

// checkDrawdownLimit evaluates the historical equity curve, not the
// prospective post-trade equity.
func (g *Gate) checkDrawdownLimit() error {
	latest, peak, ok := g.ledger.LatestEquity()
	if !ok || peak <= 0 {
		return nil
	}

	drawdown := (peak - latest) / peak
	if drawdown > g.limits.MaxDrawdown {
		return errors.Newf(errors.ErrCodeRejectedDrawdown,
			"drawdown %.4f exceeds limit %.4f", drawdown, g.limits.MaxDrawdown)
	}

	return nil
}

func (g *Gate) checkVolatilityLimit(sig types.Signal) error {
	if sig.Hints.Volatility.IsNone() {
		return nil
	}

	volatility := sig.Hints.Volatility.Unwrap()
	if volatility > g.limits.VolatilityLimit {
		return errors.Newf(errors.ErrCodeRejectedVolatility,
			"volatility %.4f exceeds limit %.4f", volatility, g.limits.VolatilityLimit)
	}

	return nil
}

func (g *Gate) checkCorrelationLimit(sig types.Signal) error {
	if sig.Hints.Correlation.IsNone() {
		return nil
	}

	correlation := math.Abs(sig.Hints.Correlation.Unwrap())
	if correlation > g.limits.CorrelationLimit {
		return errors.Newf(errors.ErrCodeRejectedCorrelation,
			"correlation %.4f exceeds limit %.4f", correlation, g.limits.CorrelationLimit)
	}

	return nil
}

// Record executes an approved signal against the ledger: the executed
// price is the signal price adjusted by slippage (up for BUY, down for
// SELL), commission is charged on the executed notional, and the booked
// trade carries the resulting capital snapshot. Record performs no
// checks of its own; callers must hold an Approve pass, except for the
// live monitor's forced position closes, which reduce exposure and are
// booked directly.
func (g *Gate) Record(sig types.Signal, reason string, strategy string) (types.Trade, error) {
	executedPrice := sig.Price

	switch sig.Action {
	case types.ActionBuy:
		executedPrice = sig.Price * (1 + g.slippage)
	case types.ActionSell:
		executedPrice = sig.Price * (1 - g.slippage)
	default:
		return types.Trade{}, errors.Newf(errors.ErrCodeInvalidSignal, "action %q cannot be recorded", sig.Action)
	}

	trade := types.Trade{
		ID:         uuid.New().String(),
		Time:       sig.Time,
		Symbol:     sig.Symbol,
		Action:     sig.Action,
		Price:      executedPrice,
		Volume:     sig.Volume,
		Commission: executedPrice * sig.Volume * g.commissionRate,
		Reason:     reason,
		Strategy:   strategy,
	}

	booked, err := g.ledger.Book(trade)
	if err != nil {
		return types.Trade{}, err
	}

	g.log.Debug("trade recorded",
		zap.String("symbol", booked.Symbol),
		zap.String("action", string(booked.Action)),
		zap.Float64("price", booked.Price),
		zap.Float64("volume", booked.Volume),
		zap.Float64("capital", booked.Capital),
		zap.String("reason", booked.Reason),
	)

	return booked, nil
}

// Submit gates and books a signal in one step.
func (g *Gate) Submit(sig types.Signal, reason string, strategy string) (types.Trade, error) {
	if err := g.Approve(sig); err != nil {
		return types.Trade{}, err
	}

	return g.Record(sig, reason, strategy)
}

// Metrics derives the current risk state of the ledger.
func (g *Gate) Metrics() types.RiskMetrics {
	latest, peak, ok := g.ledger.LatestEquity()

	drawdown := 0.0
	if ok && peak > 0 {
		drawdown = (peak - latest) / peak
	}

	positions := g.ledger.Positions()

	total := 0.0
	for _, volume := range positions {
		total += volume
	}

	concentration := make(map[string]float64, len(positions))

	if total > 0 {
		for symbol, volume := range positions {
			concentration[symbol] = volume / total
		}
	}

	return types.RiskMetrics{
		CurrentDrawdown:       drawdown,
		PositionConcentration: concentration,
		CapitalUtilization:    total / g.limits.MaxPositionSize,
		TotalPosition:         total,
		CurrentCapital:        g.ledger.Capital(),
	}
}
