package backtest

import (
	"encoding/json"
	"os"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/quantframe/quantframe/internal/strategy"
	"github.com/quantframe/quantframe/internal/types"
	"github.com/quantframe/quantframe/pkg/errors"
)

// StrategyConfig assigns one named strategy to a list of symbols.
type StrategyConfig struct {
	Name    string          `yaml:"name" json:"name" jsonschema:"title=Strategy Name,description=Registry name of the strategy" validate:"required"`
	Symbols []string        `yaml:"symbols" json:"symbols" jsonschema:"title=Symbols,description=Symbols the strategy trades" validate:"min=1,dive,required"`
	Params  strategy.Params `yaml:"params" json:"params" jsonschema:"title=Parameters,description=Strategy-specific parameters"`
}

// Config drives one backtest run.
type Config struct {
	InitialCapital float64                    `yaml:"initial_capital" json:"initial_capital" jsonschema:"title=Initial Capital,description=Starting capital in USD,minimum=0" validate:"gt=0"`
	CommissionRate float64                    `yaml:"commission_rate" json:"commission_rate" jsonschema:"title=Commission Rate,description=Commission charged on executed notional" validate:"gte=0,lt=1"`
	Slippage       float64                    `yaml:"slippage" json:"slippage" jsonschema:"title=Slippage,description=Fractional execution price deviation from the signal price" validate:"gte=0,lt=1"`
	RiskFreeRate   float64                    `yaml:"risk_free_rate" json:"risk_free_rate" jsonschema:"title=Risk Free Rate,description=Annual risk-free rate used for the Sharpe ratio" validate:"gte=0,lt=1"`
	StartTime      optional.Option[time.Time] `yaml:"start_time" json:"start_time" jsonschema:"title=Start Time,description=Optional start of the backtest period"`
	EndTime        optional.Option[time.Time] `yaml:"end_time" json:"end_time" jsonschema:"title=End Time,description=Optional end of the backtest period"`
	Risk           types.RiskLimits           `yaml:"risk" json:"risk" jsonschema:"title=Risk Limits,description=Limits enforced by the risk gate"`
	Strategies     []StrategyConfig           `yaml:"strategies" json:"strategies" jsonschema:"title=Strategies,description=Strategy assignments" validate:"dive"`
}

// DefaultConfig returns a config with the stock defaults. Strategies
// stay empty; a run with no strategies is rejected up front.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 1_000_000,
		CommissionRate: 0.0003,
		Slippage:       0.0001,
		RiskFreeRate:   0.02,
		StartTime:      optional.None[time.Time](),
		EndTime:        optional.None[time.Time](),
		Risk:           types.DefaultRiskLimits(),
	}
}

// UnmarshalYAML maps nullable YAML times onto Option values.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type raw struct {
		InitialCapital float64          `yaml:"initial_capital"`
		CommissionRate float64          `yaml:"commission_rate"`
		Slippage       float64          `yaml:"slippage"`
		RiskFreeRate   float64          `yaml:"risk_free_rate"`
		StartTime      *time.Time       `yaml:"start_time"`
		EndTime        *time.Time       `yaml:"end_time"`
		Risk           types.RiskLimits `yaml:"risk"`
		Strategies     []StrategyConfig `yaml:"strategies"`
	}

	decoded := raw{
		InitialCapital: c.InitialCapital,
		CommissionRate: c.CommissionRate,
		Slippage:       c.Slippage,
		RiskFreeRate:   c.RiskFreeRate,
		Risk:           c.Risk,
	}
	if err := unmarshal(&decoded); err != nil {
		return err
	}

	c.InitialCapital = decoded.InitialCapital
	c.CommissionRate = decoded.CommissionRate
	c.Slippage = decoded.Slippage
	c.RiskFreeRate = decoded.RiskFreeRate
	c.Risk = decoded.Risk
	c.Strategies = decoded.Strategies

	if decoded.StartTime != nil {
		c.StartTime = optional.Some(*decoded.StartTime)
	}
	if decoded.EndTime != nil {
		c.EndTime = optional.Some(*decoded.EndTime)
	}

	return nil
}

// Validate checks the config, including the risk limits and the time
// range when both ends are set.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest config", err)
	}

	if err := c.Risk.Validate(); err != nil {
		return err
	}

	if c.StartTime.IsSome() && c.EndTime.IsSome() && c.EndTime.Unwrap().Before(c.StartTime.Unwrap()) {
		return errors.New(errors.ErrCodeInvalidTimeRange, "end_time before start_time")
	}

	return nil
}

// BuildAssignments constructs the configured strategies from the
// registry and pairs them with their symbols.
func (c *Config) BuildAssignments() ([]Assignment, error) {
	assignments := make([]Assignment, 0, len(c.Strategies))

	for _, sc := range c.Strategies {
		s, err := strategy.New(sc.Name, sc.Params)
		if err != nil {
			return nil, err
		}

		assignments = append(assignments, Assignment{Strategy: s, Symbols: sc.Symbols})
	}

	return assignments, nil
}

// LoadConfig reads a YAML config file on top of the defaults and
// validates it.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config %s", path)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// GenerateSchema generates a JSON schema for the backtest config.
func (c *Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "optional.Option[time.Time]" {
				return &jsonschema.Schema{
					Type:   "string",
					Format: "date-time",
				}
			}
			if t.String() == "strategy.Params" {
				return &jsonschema.Schema{
					Type: "object",
				}
			}
			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for backtest runs"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates the JSON schema as an indented string.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
