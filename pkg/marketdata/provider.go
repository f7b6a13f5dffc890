// Package marketdata supplies live and historical bars from external
// venues. The engines depend only on the QuoteProvider interface; the
// concrete venue client is chosen at wiring time.
package marketdata

import (
	"context"
	"time"

	"github.com/quantframe/quantframe/internal/types"
)

// QuoteProvider fetches market data for the live engine and the CLI
// downloader. Implementations must be safe for concurrent use.
type QuoteProvider interface {
	// LatestBar returns the most recent completed bar for the symbol.
	LatestBar(ctx context.Context, symbol string) (types.Bar, error)
	// HistoricalBars returns completed bars in [start, end] at the given
	// interval, ascending.
	HistoricalBars(ctx context.Context, symbol string, start, end time.Time, interval time.Duration) ([]types.Bar, error)
}
