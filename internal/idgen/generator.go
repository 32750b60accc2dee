package idgen

import "fmt"

// Strategy names accepted by New.
const (
	StrategySnowflake = "snowflake"
	StrategyULID      = "ulid"
)

// Generator hands out message ids. Ids from a single generator never sort
// before an id it returned earlier.
type Generator interface {
	Generate() (string, error)
	Validate(id string) (bool, string) // (valid, reason)
}

// Config selects and parameterises a generator.
type Config struct {
	Strategy  string `mapstructure:"strategy"`
	MachineID int64  `mapstructure:"machine_id"`
	EpochMs   int64  `mapstructure:"epoch_ms"`
}

// New builds the generator named by cfg.Strategy. Empty means snowflake.
func New(cfg Config) (Generator, error) {
	switch cfg.Strategy {
	case "", StrategySnowflake:
		return NewSnowflakeGenerator(cfg.MachineID, cfg.EpochMs)
	case StrategyULID:
		return NewULIDGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q", cfg.Strategy)
	}
}
