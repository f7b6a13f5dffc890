// Package datasource supplies ordered OHLCV bars to the engines. Market
// data acquisition itself (download, persistence) is an external
// collaborator; the engines only consume this read-only query surface.
package datasource

import (
	"time"

	"github.com/quantframe/quantframe/internal/types"
)

// DataSource provides indexed, read-only access to bar history. All
// methods must be safe for concurrent use: parallel optimizer trials
// share one DataSource.
type DataSource interface {
	// Symbols returns every symbol with at least one bar, sorted.
	Symbols() []string
	// Range returns the first and last bar times for a symbol.
	Range(symbol string) (start time.Time, end time.Time, ok bool)
	// BarsUpTo returns all bars for the symbol with Time <= t in
	// ascending order. The returned slice is shared and must not be
	// mutated by the caller.
	BarsUpTo(symbol string, t time.Time) []types.Bar
	// BarsBetween returns all bars with from <= Time <= to in ascending
	// order, under the same sharing rule as BarsUpTo.
	BarsBetween(symbol string, from, to time.Time) []types.Bar
	// LastCloseAt returns the most recent close at or before t.
	LastCloseAt(symbol string, t time.Time) (float64, bool)
}
