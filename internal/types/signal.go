package types

import (
	"time"

	"github.com/moznion/go-optional"
)

type SignalAction string

const (
	// ActionBuy opens or increases a long position.
	ActionBuy SignalAction = "BUY"
	// ActionSell reduces or closes a long position. Short selling is not
	// modeled; a SELL beyond the held volume is rejected by the gate.
	ActionSell SignalAction = "SELL"
	// ActionHold takes no action for the current bar.
	ActionHold SignalAction = "HOLD"
)

// TradeReason values recorded on trades booked through the gate.
const (
	TradeReasonStrategy   string = "strategy"
	TradeReasonStopLoss   string = "stop_loss"
	TradeReasonTakeProfit string = "take_profit"
	TradeReasonRiskBreach string = "risk_breach"
)

// RiskHints carries strategy-reported risk signals alongside a trade
// intent. Hints are optional; the gate only evaluates the limits for
// which a hint is present.
type RiskHints struct {
	// Volatility is the strategy's estimate of annualized return volatility.
	Volatility optional.Option[float64]
	// Correlation is the strategy's estimate of correlation against the
	// rest of the portfolio; the gate compares its absolute value.
	Correlation optional.Option[float64]
	// TrendStrength is informational and not gated.
	TrendStrength optional.Option[float64]
}

// Signal is a strategy's trade intent for the current bar. Signals are
// ephemeral: they exist between strategy evaluation and gate submission
// and are never stored.
type Signal struct {
	Time   time.Time
	Symbol string
	Action SignalAction
	Price  float64
	Volume float64
	// Strength scales position sizing in the live engine, in [0, 1].
	// Backtests use the signal volume directly.
	Strength float64
	Hints    RiskHints
}
