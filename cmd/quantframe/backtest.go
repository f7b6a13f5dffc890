package main

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/quantframe/quantframe/internal/backtest"
	"github.com/quantframe/quantframe/internal/datasource"
	"github.com/quantframe/quantframe/internal/logger"
	"github.com/quantframe/quantframe/internal/types"
)

func backtestCommand() *cli.Command {
	return &cli.Command{
		Name:  "backtest",
		Usage: "Run a backtest from a YAML config over a directory of CSV bars",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the backtest YAML config",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Directory of per-symbol CSV bar files",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Path for the result YAML",
				Value:   "result.yaml",
			},
		},
		Action: backtestAction,
	}
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	config, err := backtest.LoadConfig(cmd.String("config"))
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

	assignments, err := config.BuildAssignments()
	if err != nil {
		return err
	}

	engine := backtest.NewEngine(config, log)
	engine.SetDataSource(datasource.NewMemoryFromBars(bars))

	for _, assignment := range assignments {
		engine.AddAssignment(assignment.Strategy, assignment.Symbols...)
	}

	var bar *progressbar.ProgressBar

	engine.OnProgress(func(done, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "backtesting")
		}

		_ = bar.Set(done)
	})

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	if err := types.WriteResult(cmd.String("output"), result); err != nil {
		return err
	}

	fmt.Printf("total return: %.4f  annual return: %.4f  max drawdown: %.4f  sharpe: %.4f  win rate: %.4f  trades: %d\n",
		result.TotalReturn, result.AnnualReturn, result.MaxDrawdown, result.SharpeRatio, result.WinRate, result.TotalTrades)
	fmt.Printf("result written to %s\n", cmd.String("output"))

	return nil
}
