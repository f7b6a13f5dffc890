// Command quantframe backtests, optimizes and live-simulates trading
// strategies over OHLCV bar data.
package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "quantframe",
		Usage: "Backtest, optimize and live-simulate trading strategies",
		Commands: []*cli.Command{
			backtestCommand(),
			optimizeCommand(),
			livesimCommand(),
			downloadCommand(),
			schemaCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
