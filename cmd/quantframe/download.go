package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/quantframe/quantframe/pkg/marketdata"
)

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download historical bars from Binance into a CSV file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "symbol",
				Usage:    "Symbol to download, e.g. BTCUSDT",
				Required: true,
			},
			&cli.TimestampFlag{
				Name:     "start",
				Aliases:  []string{"s"},
				Usage:    "Start date in `YYYY-MM-DD` format",
				Required: true,
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.TimestampFlag{
				Name:     "end",
				Aliases:  []string{"e"},
				Usage:    "End date in `YYYY-MM-DD` format",
				Required: true,
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Bar interval",
				Value: 24 * time.Hour,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Path for the CSV file",
				Value:   "bars.csv",
			},
		},
		Action: downloadAction,
	}
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	symbol := cmd.String("symbol")
	provider := marketdata.NewBinanceProvider()

	spinner := progressbar.Default(-1, fmt.Sprintf("downloading %s", symbol))

	bars, err := provider.HistoricalBars(ctx, symbol, cmd.Timestamp("start"), cmd.Timestamp("end"), cmd.Duration("interval"))
	_ = spinner.Finish()

	if err != nil {
		return err
	}

	if len(bars) == 0 {
		return errors.Newf(errors.ErrCodeDataNotFound, "no bars returned for %s", symbol)
	}

	if err := writeBarsCSV(cmd.String("output"), bars); err != nil {
		return err
	}

	fmt.Printf("wrote %d bars to %s\n", len(bars), cmd.String("output"))

	return nil
}

func writeBarsCSV(path string, bars []types.Bar) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInternal, err, "failed to create %s", path)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"time", "symbol", "open", "high", "low", "close", "volume"}); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "failed to write CSV header", err)
	}

	for _, bar := range bars {
		record := []string{
			bar.Time.UTC().Format(time.RFC3339),
			bar.Symbol,
			strconv.FormatFloat(bar.Open, 'f', -1, 64),
			strconv.FormatFloat(bar.High, 'f', -1, 64),
			strconv.FormatFloat(bar.Low, 'f', -1, 64),
			strconv.FormatFloat(bar.Close, 'f', -1, 64),
			strconv.FormatFloat(bar.Volume, 'f', -1, 64),
		}

		if err := writer.Write(record); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "failed to write CSV record", err)
		}
	}

	return writer.Error()
}
