package datasource

import (
	"sort"
	"sync"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// Memory is an in-memory indexed DataSource. It keeps each symbol's bars
// sorted by time and answers range queries with binary search, so the
// per-bar cost of a backtest stays flat regardless of history length.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]types.Bar
}

// NewMemory creates an empty in-memory data source.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]types.Bar),
	}
}

// NewMemoryFromBars creates a data source preloaded with the given bars.
// Bars may arrive in any order; they are sorted per symbol.
func NewMemoryFromBars(bars []types.Bar) *Memory {
	m := NewMemory()
	m.AddBars(bars)

	return m
}

// AddBars inserts bars, keeping each symbol's sequence sorted by time.
func (m *Memory) AddBars(bars []types.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()

	touched := make(map[string]bool)

	for _, bar := range bars {
		m.data[bar.Symbol] = append(m.data[bar.Symbol], bar)
		touched[bar.Symbol] = true
	}

	for symbol := range touched {
		series := m.data[symbol]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].Time.Before(series[j].Time)
		})
	}
}

// Trim drops each symbol's oldest bars so that at most limit bars
// remain per symbol. A non-positive limit keeps everything. The kept
// bars are copied so the dropped prefix can be collected.
func (m *Memory) Trim(limit int) {
	if limit <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, series := range m.data {
		if excess := len(series) - limit; excess > 0 {
			m.data[symbol] = append([]types.Bar(nil), series[excess:]...)
		}
	}
}

// Symbols implements DataSource.
func (m *Memory) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.data))
	for symbol := range m.data {
		symbols = append(symbols, symbol)
	}

	sort.Strings(symbols)

	return symbols
}

// Range implements DataSource.
func (m *Memory) Range(symbol string) (time.Time, time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series, ok := m.data[symbol]
	if !ok || len(series) == 0 {
		return time.Time{}, time.Time{}, false
	}

	return series[0].Time, series[len(series)-1].Time, true
}

// BarsUpTo implements DataSource.
func (m *Memory) BarsUpTo(symbol string, t time.Time) []types.Bar {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.data[symbol]
	// First index with Time > t.
	idx := sort.Search(len(series), func(i int) bool {
		return series[i].Time.After(t)
	})

	return series[:idx]
}

// BarsBetween implements DataSource.
func (m *Memory) BarsBetween(symbol string, from, to time.Time) []types.Bar {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.data[symbol]
	lo := sort.Search(len(series), func(i int) bool {
		return !series[i].Time.Before(from)
	})
	hi := sort.Search(len(series), func(i int) bool {
		return series[i].Time.After(to)
	})

	if lo >= hi {
		return nil
	}

	return series[lo:hi]
}

// LastCloseAt implements DataSource.
func (m *Memory) LastCloseAt(symbol string, t time.Time) (float64, bool) {
	bars := m.BarsUpTo(symbol, t)
	if len(bars) == 0 {
		return 0, false
	}

	return bars[len(bars)-1].Close, true
}

// Bounds returns the earliest start and latest end across all symbols.
// Returns an error when the source holds no bars at all.
func (m *Memory) Bounds() (time.Time, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var start, end time.Time

	found := false

	for _, series := range m.data {
		if len(series) == 0 {
			continue
		}

		if !found || series[0].Time.Before(start) {
			start = series[0].Time
		}

		if !found || series[len(series)-1].Time.After(end) {
			end = series[len(series)-1].Time
		}

		found = true
	}

	if !found {
		return time.Time{}, time.Time{}, errors.New(errors.ErrCodeDataNotFound, "data source holds no bars")
	}

	return start, end, nil
}
