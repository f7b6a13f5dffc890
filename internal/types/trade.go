package types

import "time"

// Trade is one executed, booked transaction. Trades are append-only and
// strictly ordered by execution time; a recorded trade is never mutated.
type Trade struct {
	ID     string       `yaml:"id" json:"id" csv:"id"`
	Time   time.Time    `yaml:"time" json:"time" csv:"time"`
	Symbol string       `yaml:"symbol" json:"symbol" csv:"symbol"`
	Action SignalAction `yaml:"action" json:"action" csv:"action"`
	// Price is the executed price: the signal price adjusted by slippage.
	Price  float64 `yaml:"price" json:"price" csv:"price"`
	Volume float64 `yaml:"volume" json:"volume" csv:"volume"`
	// Commission is charged on the executed notional.
	Commission float64 `yaml:"commission" json:"commission" csv:"commission"`
	// Capital is the ledger's capital immediately after this trade was
	// booked (append-then-snapshot ordering).
	Capital float64 `yaml:"capital" json:"capital" csv:"capital"`
	// Reason records why the trade was placed: strategy signal, stop
	// loss, take profit, or portfolio risk breach.
	Reason string `yaml:"reason" json:"reason" csv:"reason"`
	// Strategy is the name of the strategy that originated the trade.
	Strategy string `yaml:"strategy" json:"strategy" csv:"strategy"`
}
