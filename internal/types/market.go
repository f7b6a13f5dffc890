package types

import "time"

// Bar is one OHLCV observation for a symbol over a fixed period.
// Bars are immutable once produced and strictly ordered by time within
// a symbol's sequence.
type Bar struct {
	Time   time.Time `yaml:"time" json:"time" csv:"time"`
	Symbol string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	Open   float64   `yaml:"open" json:"open" csv:"open"`
	High   float64   `yaml:"high" json:"high" csv:"high"`
	Low    float64   `yaml:"low" json:"low" csv:"low"`
	Close  float64   `yaml:"close" json:"close" csv:"close"`
	Volume float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// EngineStatus describes the lifecycle state of the live simulation engine.
type EngineStatus string

const (
	EngineStatusStopped EngineStatus = "STOPPED"
	EngineStatusRunning EngineStatus = "RUNNING"
)
