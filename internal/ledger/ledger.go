// Package ledger holds the mutable record of one simulation run: cash
// capital, per-symbol positions, the append-only trade history, and the
// per-period equity curve.
package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// entryState tracks the volume-weighted average entry price of an open
// position, used by the live engine's stop-loss/take-profit monitor.
type entryState struct {
	avgPrice float64
	openedAt time.Time
}

// Ledger owns capital, positions, trades, and the equity curve for one
// run. A backtest creates a fresh Ledger per run and discards it at run
// end; the live engine shares one Ledger across its tasks, which is why
// every accessor takes the lock. All mutation goes through Book, and the
// only caller of Book in this repository is the risk gate's Record.
type Ledger struct {
	mu             sync.RWMutex
	initialCapital float64
	capital        float64
	positions      map[string]float64
	lastPrice      map[string]float64
	entries        map[string]entryState
	trades         []types.Trade
	equity         []float64
}

// New creates a ledger with the given starting capital.
func New(initialCapital float64) *Ledger {
	return &Ledger{
		initialCapital: initialCapital,
		capital:        initialCapital,
		positions:      make(map[string]float64),
		lastPrice:      make(map[string]float64),
		entries:        make(map[string]entryState),
	}
}

// InitialCapital returns the starting capital of the run.
func (l *Ledger) InitialCapital() float64 {
	return l.initialCapital
}

// Capital returns the current cash capital.
func (l *Ledger) Capital() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.capital
}

// Position returns the held volume for a symbol.
func (l *Ledger) Position(symbol string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.positions[symbol]
}

// Positions returns a copy of all non-zero positions.
func (l *Ledger) Positions() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make(map[string]float64, len(l.positions))
	for symbol, volume := range l.positions {
		positions[symbol] = volume
	}

	return positions
}

// TotalPosition returns the sum of all held volumes.
func (l *Ledger) TotalPosition() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.totalPositionLocked()
}

func (l *Ledger) totalPositionLocked() float64 {
	total := 0.0
	for _, volume := range l.positions {
		total += volume
	}

	return total
}

// MarkPrice records the last known price for a symbol. Mark-to-market
// equity uses these prices.
func (l *Ledger) MarkPrice(symbol string, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastPrice[symbol] = price
}

// LastPrice returns the last marked price for a symbol.
func (l *Ledger) LastPrice(symbol string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	price, ok := l.lastPrice[symbol]

	return price, ok
}

// AvgEntryPrice returns the volume-weighted average entry price of the
// open position in symbol.
func (l *Ledger) AvgEntryPrice(symbol string) (float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[symbol]
	if !ok {
		return 0, false
	}

	return entry.avgPrice, true
}

// MarkToMarket returns capital plus the value of every open position at
// its last marked price. Symbols are visited in sorted order so the
// floating-point sum is reproducible across runs.
func (l *Ledger) MarkToMarket() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.markToMarketLocked()
}

func (l *Ledger) markToMarketLocked() float64 {
	symbols := make([]string, 0, len(l.positions))
	for symbol := range l.positions {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	equity := l.capital
	for _, symbol := range symbols {
		equity += l.positions[symbol] * l.lastPrice[symbol]
	}

	return equity
}

// ObserveEquity appends the current mark-to-market value to the equity
// curve. The engines call this exactly once per simulated period, so
// len(EquityCurve()) always equals the number of periods processed.
func (l *Ledger) ObserveEquity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	equity := l.markToMarketLocked()
	l.equity = append(l.equity, equity)

	return equity
}

// EquityCurve returns a copy of the recorded equity observations.
func (l *Ledger) EquityCurve() []float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	curve := make([]float64, len(l.equity))
	copy(curve, l.equity)

	return curve
}

// LatestEquity returns the most recent equity observation and the
// running peak over all observations. ok is false before the first
// observation.
func (l *Ledger) LatestEquity() (latest float64, peak float64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.equity) == 0 {
		return 0, 0, false
	}

	latest = l.equity[len(l.equity)-1]
	peak = l.equity[0]

	for _, value := range l.equity {
		if value > peak {
			peak = value
		}
	}

	return latest, peak, true
}

// Trades returns a copy of the trade history.
func (l *Ledger) Trades() []types.Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	trades := make([]types.Trade, len(l.trades))
	copy(trades, l.trades)

	return trades
}

// Book applies an executed trade: debits or credits capital, adjusts the
// position and its average entry price, marks the trade price as the
// symbol's last price, fills the trade's resulting-capital snapshot, and
// appends it to the history. Book performs no risk checks; the risk
// gate's Record is the single gated entry point that calls it.
func (l *Ledger) Book(trade types.Trade) (types.Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch trade.Action {
	case types.ActionBuy:
		l.capital -= trade.Price*trade.Volume + trade.Commission

		held := l.positions[trade.Symbol]
		entry := l.entries[trade.Symbol]

		newVolume := held + trade.Volume
		entry.avgPrice = (entry.avgPrice*held + trade.Price*trade.Volume) / newVolume

		if held == 0 {
			entry.openedAt = trade.Time
		}

		l.positions[trade.Symbol] = newVolume
		l.entries[trade.Symbol] = entry

	case types.ActionSell:
		held := l.positions[trade.Symbol]
		if held <= 0 {
			return types.Trade{}, errors.Newf(errors.ErrCodeRejectedShortSale,
				"cannot sell %s: no position held", trade.Symbol)
		}

		// Concurrent exit paths can race to close the same position;
		// only the held volume is ever sold or credited.
		if trade.Volume > held {
			trade.Commission *= held / trade.Volume
			trade.Volume = held
		}

		l.capital += trade.Price*trade.Volume - trade.Commission

		remaining := held - trade.Volume
		if remaining <= 0 {
			delete(l.positions, trade.Symbol)
			delete(l.entries, trade.Symbol)
		} else {
			l.positions[trade.Symbol] = remaining
		}

	default:
		return types.Trade{}, errors.Newf(errors.ErrCodeInvalidSignal, "cannot book action %q", trade.Action)
	}

	l.lastPrice[trade.Symbol] = trade.Price
	trade.Capital = l.capital
	l.trades = append(l.trades, trade)

	return trade, nil
}

// Replay books an already-recorded trade list against this ledger with
// no gating, returning the capital snapshot after each trade. A replay
// of a run's trades against a fresh ledger with the same initial capital
// reproduces the run's capital trajectory exactly.
func (l *Ledger) Replay(trades []types.Trade) ([]float64, error) {
	capitals := make([]float64, 0, len(trades))

	for _, trade := range trades {
		booked, err := l.Book(trade)
		if err != nil {
			return nil, err
		}

		capitals = append(capitals, booked.Capital)
	}

	return capitals, nil
}

// Reset restores the ledger to its initial state. The live engine uses
// this on an explicit stop/reset; backtests build a fresh ledger instead.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.capital = l.initialCapital
	l.positions = make(map[string]float64)
	l.lastPrice = make(map[string]float64)
	l.entries = make(map[string]entryState)
	l.trades = nil
	l.equity = nil
}
