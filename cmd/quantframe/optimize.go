package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/quantframe/quantframe/internal/backtest"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/optimizer"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

func optimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Search strategy parameters by grid search or cross-validation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the backtest YAML config used for every trial",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Directory of per-symbol CSV bar files",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "strategy",
				Aliases:  []string{"s"},
				Usage:    "Registry name of the strategy to optimize",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "symbol",
				Usage:    "Symbol to trade (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "grid",
				Aliases:  []string{"g"},
				Usage:    "YAML file mapping parameter name to a list of candidate values",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "metric",
				Usage: "Target metric: sharpe_ratio, total_return, win_rate or max_drawdown",
				Value: string(optimizer.MetricSharpeRatio),
			},
			&cli.IntFlag{
				Name:  "folds",
				Usage: "Cross-validation fold count; 0 runs a plain grid search",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Path for the winning result YAML",
				Value:   "optimized.yaml",
			},
		},
		Action: optimizeAction,
	}
}

func loadGrid(path string) (optimizer.Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read grid %s", path)
	}

	var grid optimizer.Grid
	if err := yaml.Unmarshal(data, &grid); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse grid %s", path)
	}

	return grid, nil
}

func optimizeAction(ctx context.Context, cmd *cli.Command) error {
	config, err := backtest.LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	grid, err := loadGrid(cmd.String("grid"))
	if err != nil {
		return err
	}

	bars, err := datasource.LoadCSVDir(cmd.String("data"))
	if err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opt, err := optimizer.New(
		config,
		cmd.String("strategy"),
		cmd.StringSlice("symbol"),
		datasource.NewMemoryFromBars(bars),
		optimizer.TargetMetric(cmd.String("metric")),
		log,
	)
	if err != nil {
		return err
	}

	var (
		params map[string]any
		result types.Result
	)

	if folds := cmd.Int("folds"); folds > 0 {
		best, finalResult, err := opt.CrossValidate(ctx, grid, int(folds))
		if err != nil {
			return err
		}

		params = best.Params
		result = finalResult

		fmt.Printf("best mean score: %.4f (std %.4f)\n", best.MeanScore, best.StdScore)
	} else {
		best, trials, err := opt.GridSearch(ctx, grid)
		if err != nil {
			return err
		}

		params = best.Params
		result = best.Result

		fmt.Printf("valid trials: %d\n", len(trials))
	}

	fmt.Printf("best params: %v\n", params)
	fmt.Printf("total return: %.4f  max drawdown: %.4f  sharpe: %.4f\n",
		result.TotalReturn, result.MaxDrawdown, result.SharpeRatio)

	return types.WriteResult(cmd.String("output"), result)
}
