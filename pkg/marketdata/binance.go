package marketdata

import (
	"context"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// binancePageSize is the kline page limit imposed by the Binance API.
const binancePageSize = 500

// BinanceProvider fetches klines from Binance. Public market data needs
// no credentials.
type BinanceProvider struct {
	client *binance.Client
}

// NewBinanceProvider creates a provider against the public Binance API.
func NewBinanceProvider() *BinanceProvider {
	return &BinanceProvider{
		client: binance.NewClient("", ""),
	}
}

// LatestBar implements QuoteProvider. It returns the most recent closed
// one-minute kline.
func (p *BinanceProvider) LatestBar(ctx context.Context, symbol string) (types.Bar, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(symbol).
		Interval("1m").
		Limit(2).
		Do(ctx)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeQuoteFetchFailed, err, "failed to fetch latest kline for %s", symbol)
	}

	if len(klines) == 0 {
		return types.Bar{}, errors.Newf(errors.ErrCodeDataNotFound, "no klines for %s", symbol)
	}

	// The last kline is still forming; prefer the one before it.
	kline := klines[len(klines)-1]
	if len(klines) > 1 {
		kline = klines[len(klines)-2]
	}

	return klineToBar(symbol, kline)
}

// HistoricalBars implements QuoteProvider, paging through the kline
// endpoint until the range is covered.
func (p *BinanceProvider) HistoricalBars(ctx context.Context, symbol string, start, end time.Time, interval time.Duration) ([]types.Bar, error) {
	binanceInterval, err := durationToBinanceInterval(interval)
	if err != nil {
		return nil, err
	}

	// Binance timestamps are milliseconds.
	currentStart := start.UnixMilli()
	endMillis := end.UnixMilli()

	var bars []types.Bar

	for {
		klines, err := p.client.NewKlinesService().
			Symbol(symbol).
			Interval(binanceInterval).
			StartTime(currentStart).
			EndTime(endMillis).
			Limit(binancePageSize).
			Do(ctx)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeQuoteFetchFailed, err, "failed to fetch klines for %s", symbol)
		}

		for _, kline := range klines {
			bar, err := klineToBar(symbol, kline)
			if err != nil {
				return nil, err
			}

			bars = append(bars, bar)
		}

		if len(klines) < binancePageSize {
			break
		}

		// Advance past the close time of the last kline to avoid
		// duplicates on the next page.
		currentStart = klines[len(klines)-1].CloseTime + 1
		if currentStart >= endMillis {
			break
		}
	}

	return bars, nil
}

func klineToBar(symbol string, kline *binance.Kline) (types.Bar, error) {
	open, err := strconv.ParseFloat(kline.Open, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "bad open in kline for %s", symbol)
	}

	high, err := strconv.ParseFloat(kline.High, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "bad high in kline for %s", symbol)
	}

	low, err := strconv.ParseFloat(kline.Low, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "bad low in kline for %s", symbol)
	}

	closePrice, err := strconv.ParseFloat(kline.Close, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "bad close in kline for %s", symbol)
	}

	volume, err := strconv.ParseFloat(kline.Volume, 64)
	if err != nil {
		return types.Bar{}, errors.Wrapf(errors.ErrCodeDataParseFailed, err, "bad volume in kline for %s", symbol)
	}

	return types.Bar{
		Time:   time.UnixMilli(kline.OpenTime).UTC(),
		Symbol: symbol,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, nil
}

func durationToBinanceInterval(interval time.Duration) (string, error) {
	switch interval {
	case time.Minute:
		return "1m", nil
	case 5 * time.Minute:
		return "5m", nil
	case 15 * time.Minute:
		return "15m", nil
	case time.Hour:
		return "1h", nil
	case 4 * time.Hour:
		return "4h", nil
	case 24 * time.Hour:
		return "1d", nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported kline interval %s", interval)
	}
}
