package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Result is the outcome of one backtest run.
type Result struct {
	// TotalReturn is (final equity - initial capital) / initial capital.
	TotalReturn float64 `yaml:"total_return" json:"total_return"`
	// AnnualReturn is the total return compounded to a 365-day year.
	AnnualReturn float64 `yaml:"annual_return" json:"annual_return"`
	// MaxDrawdown is the largest fractional decline from a running equity peak.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
	// DrawdownDuration is the longest run of consecutive periods spent
	// below the running peak.
	DrawdownDuration int `yaml:"drawdown_duration" json:"drawdown_duration"`
	// SharpeRatio is the annualized mean excess daily return over its
	// standard deviation.
	SharpeRatio float64 `yaml:"sharpe_ratio" json:"sharpe_ratio"`
	// Volatility is the annualized standard deviation of daily returns.
	Volatility float64 `yaml:"volatility" json:"volatility"`
	// WinRate is winning round trips over closed round trips, with round
	// trips formed by FIFO lot matching.
	WinRate float64 `yaml:"win_rate" json:"win_rate"`
	// ProfitFactor is gross round-trip profit over gross round-trip loss.
	ProfitFactor float64 `yaml:"profit_factor" json:"profit_factor"`
	// AvgTradeReturn is the mean net P&L per closed round trip.
	AvgTradeReturn float64 `yaml:"avg_trade_return" json:"avg_trade_return"`
	// TotalTrades counts every booked trade, both sides.
	TotalTrades int `yaml:"total_trades" json:"total_trades"`
	// ClosedRoundTrips counts FIFO-matched entry/exit pairs.
	ClosedRoundTrips int `yaml:"closed_round_trips" json:"closed_round_trips"`
	// EquityCurve holds one mark-to-market observation per simulated period.
	EquityCurve []float64 `yaml:"equity_curve" json:"equity_curve"`
	Trades      []Trade   `yaml:"trades" json:"trades"`
}

// WriteResult writes a result to a YAML file.
func WriteResult(path string, result Result) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write result to file: %w", err)
	}

	return nil
}
