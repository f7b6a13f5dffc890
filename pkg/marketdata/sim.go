package marketdata

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// SimProvider generates a seeded random walk per symbol, for offline
// live-simulation runs and tests. The walk is deterministic for a given
// seed and call sequence.
type SimProvider struct {
	mu         sync.Mutex
	rng        *rand.Rand
	prices     map[string]float64
	startPrice float64
	step       float64
	now        func() time.Time
}

// NewSimProvider creates a provider starting every symbol at startPrice
// and moving it by at most step (fractional) per fetch.
func NewSimProvider(seed int64, startPrice, step float64) *SimProvider {
	return &SimProvider{
		rng:        rand.New(rand.NewSource(seed)),
		prices:     make(map[string]float64),
		startPrice: startPrice,
		step:       step,
		now:        time.Now,
	}
}

// SetClock overrides the bar timestamp source, for tests.
func (p *SimProvider) SetClock(now func() time.Time) {
	p.now = now
}

// SetPrice pins the current price of a symbol.
func (p *SimProvider) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prices[symbol] = price
}

// LatestBar implements QuoteProvider.
func (p *SimProvider) LatestBar(_ context.Context, symbol string) (types.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok {
		price = p.startPrice
	}

	next := price * (1 + (p.rng.Float64()*2-1)*p.step)
	p.prices[symbol] = next

	high := price
	low := next
	if next > price {
		high, low = next, price
	}

	return types.Bar{
		Time:   p.now().UTC(),
		Symbol: symbol,
		Open:   price,
		High:   high,
		Low:    low,
		Close:  next,
		Volume: 1000 + p.rng.Float64()*9000,
	}, nil
}

// HistoricalBars implements QuoteProvider by walking the range at the
// given interval.
func (p *SimProvider) HistoricalBars(ctx context.Context, symbol string, start, end time.Time, interval time.Duration) ([]types.Bar, error) {
	if interval <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "interval must be positive")
	}
	if end.Before(start) {
		return nil, errors.New(errors.ErrCodeInvalidTimeRange, "end before start")
	}

	var bars []types.Bar

	for t := start; !t.After(end); t = t.Add(interval) {
		bar, err := p.LatestBar(ctx, symbol)
		if err != nil {
			return nil, err
		}

		bar.Time = t
		bars = append(bars, bar)
	}

	return bars, nil
}
