package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/quantframe/quantframe/internal/livesim"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
	"github.com/quantframe/quantframe/pkg/marketdata"
)

func livesimCommand() *cli.Command {
	return &cli.Command{
		Name:  "livesim",
		Usage: "Run a strategy against live quotes on a simulated ledger",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "symbol",
				Usage:    "Symbol to trade (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "strategy",
				Aliases:  []string{"s"},
				Usage:    "Registry name of the strategy",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "params",
				Usage: "Optional YAML file of strategy parameters",
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Quote source: binance or sim",
				Value: "binance",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Quote polling interval",
				Value: time.Second,
			},
			&cli.DurationFlag{
				Name:  "duration",
				Usage: "Stop after this long; 0 runs until interrupted",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Optional path for the performance YAML on exit",
			},
		},
		Action: livesimAction,
	}
}

func buildProvider(name string) (marketdata.QuoteProvider, error) {
	switch name {
	case "binance":
		return marketdata.NewBinanceProvider(), nil
	case "sim":
		return marketdata.NewSimProvider(time.Now().UnixNano(), 100, 0.005), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unknown provider %q", name)
	}
}

func livesimAction(ctx context.Context, cmd *cli.Command) error {
	params := strategy.Params{}
	if path := cmd.String("params"); path != "" {
		loaded, err := readParamsFile(path)
		if err != nil {
			return err
		}

		params = loaded
	}

	s, err := strategy.New(cmd.String("strategy"), params)
	if err != nil {
		return err
	}

	provider, err := buildProvider(cmd.String("provider"))
	if err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	config := livesim.DefaultConfig(cmd.StringSlice("symbol")...)
	config.UpdateInterval = cmd.Duration("interval")
	config.MonitorInterval = cmd.Duration("interval")

	engine, err := livesim.NewEngine(config, s, provider, log)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(runCtx); err != nil {
		return err
	}

	if d := cmd.Duration("duration"); d > 0 {
		select {
		case <-runCtx.Done():
		case <-time.After(d):
		}
	} else {
		<-runCtx.Done()
	}

	if err := engine.Stop(); err != nil {
		return err
	}

	perf := engine.Performance()
	fmt.Printf("total return: %.4f  max drawdown: %.4f  trades: %d\n",
		perf.TotalReturn, perf.MaxDrawdown, perf.TotalTrades)

	if path := cmd.String("output"); path != "" {
		return types.WriteResult(path, perf)
	}

	return nil
}

func readParamsFile(path string) (strategy.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read params %s", path)
	}

	var params strategy.Params
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse params %s", path)
	}

	return params, nil
}
