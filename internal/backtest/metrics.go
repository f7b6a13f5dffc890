package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/quantframe/quantframe/internal/ledger"
	"github.com/quantframe/quantframe/internal/types"
)

// tradingDaysPerYear is the annualization base for Sharpe and volatility.
const tradingDaysPerYear = 252

// Evaluate derives run statistics from a ledger's equity curve and
// trade list. The live engine uses it for performance snapshots as well.
func Evaluate(riskFreeRate float64, led *ledger.Ledger) types.Result {
	curve := led.EquityCurve()
	trades := led.Trades()

	result := types.Result{
		EquityCurve: curve,
		Trades:      trades,
		TotalTrades: len(trades),
	}

	if len(curve) == 0 {
		return result
	}

	finalEquity := curve[len(curve)-1]
	result.TotalReturn = (finalEquity - led.InitialCapital()) / led.InitialCapital()

	days := float64(len(curve))
	if growth := 1 + result.TotalReturn; growth > 0 {
		result.AnnualReturn = math.Pow(growth, 365/days) - 1
	} else {
		result.AnnualReturn = -1
	}

	result.MaxDrawdown, result.DrawdownDuration = drawdown(curve)
	result.SharpeRatio, result.Volatility = sharpe(curve, riskFreeRate)

	roundTrips := matchRoundTrips(trades)
	result.ClosedRoundTrips = len(roundTrips)

	if len(roundTrips) > 0 {
		wins := 0
		grossProfit := decimal.Zero
		grossLoss := decimal.Zero
		total := decimal.Zero

		for _, pnl := range roundTrips {
			total = total.Add(pnl)

			if pnl.IsPositive() {
				wins++
				grossProfit = grossProfit.Add(pnl)
			} else {
				grossLoss = grossLoss.Add(pnl.Neg())
			}
		}

		result.WinRate = float64(wins) / float64(len(roundTrips))
		result.AvgTradeReturn = total.Div(decimal.NewFromInt(int64(len(roundTrips)))).InexactFloat64()

		switch {
		case grossLoss.IsZero() && grossProfit.IsPositive():
			result.ProfitFactor = math.Inf(1)
		case grossLoss.IsPositive():
			result.ProfitFactor = grossProfit.Div(grossLoss).InexactFloat64()
		}
	}

	return result
}

// drawdown returns the maximum fractional decline from the running peak
// and the longest run of consecutive periods spent below it.
func drawdown(curve []float64) (float64, int) {
	maxDrawdown := 0.0
	peak := curve[0]
	duration := 0
	longest := 0

	for _, equity := range curve {
		if equity >= peak {
			peak = equity
			duration = 0
			continue
		}

		duration++
		if duration > longest {
			longest = duration
		}

		if dd := (peak - equity) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	return maxDrawdown, longest
}

// sharpe returns the annualized Sharpe ratio over daily excess returns
// and the annualized return volatility. Population standard deviation,
// zero when the curve is too short or flat.
func sharpe(curve []float64, riskFreeRate float64) (float64, float64) {
	if len(curve) < 2 {
		return 0, 0
	}

	daily := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1] == 0 {
			return 0, 0
		}
		daily = append(daily, curve[i]/curve[i-1]-1)
	}

	mean := 0.0
	for _, r := range daily {
		mean += r
	}
	mean /= float64(len(daily))

	variance := 0.0
	for _, r := range daily {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(daily))

	std := math.Sqrt(variance)
	volatility := std * math.Sqrt(tradingDaysPerYear)

	if std == 0 {
		return 0, volatility
	}

	excessMean := mean - riskFreeRate/tradingDaysPerYear

	return math.Sqrt(tradingDaysPerYear) * excessMean / std, volatility
}

// lot is an open FIFO entry: remaining volume bought at a unit cost that
// includes the buy-side commission.
type lot struct {
	volume   decimal.Decimal
	unitCost decimal.Decimal
}

// matchRoundTrips pairs each SELL against the oldest open BUY lots of
// the same symbol and returns one net P&L per SELL. Commissions enter on
// both sides: the buy commission is folded into the lot's unit cost, the
// sell commission is deducted from the proceeds. SELL volume with no
// matching lot is ignored; the gate rejects shorts, so it cannot occur
// in curves produced by an engine run.
func matchRoundTrips(trades []types.Trade) []decimal.Decimal {
	open := make(map[string][]lot)
	pnls := make([]decimal.Decimal, 0)

	for _, trade := range trades {
		price := decimal.NewFromFloat(trade.Price)
		volume := decimal.NewFromFloat(trade.Volume)
		commission := decimal.NewFromFloat(trade.Commission)

		switch trade.Action {
		case types.ActionBuy:
			if volume.IsZero() {
				continue
			}
			unitCost := price.Add(commission.Div(volume))
			open[trade.Symbol] = append(open[trade.Symbol], lot{volume: volume, unitCost: unitCost})

		case types.ActionSell:
			lots := open[trade.Symbol]
			if len(lots) == 0 || volume.IsZero() {
				continue
			}

			proceeds := price.Mul(volume).Sub(commission)
			cost := decimal.Zero
			remaining := volume

			for len(lots) > 0 && remaining.IsPositive() {
				matched := decimal.Min(lots[0].volume, remaining)
				cost = cost.Add(matched.Mul(lots[0].unitCost))
				remaining = remaining.Sub(matched)

				lots[0].volume = lots[0].volume.Sub(matched)
				if lots[0].volume.IsZero() {
					lots = lots[1:]
				}
			}

			open[trade.Symbol] = lots
			pnls = append(pnls, proceeds.Sub(cost))
		}
	}

	return pnls
}
