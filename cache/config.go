package cache

import (
	"github.com/goliatone/go-stmt-cache/internal/cacheinfra"
)

// Close modes accepted by Config.CloseMode.
const (
	CloseDeferred  = string(cacheinfra.CloseDeferred)
	CloseImmediate = string(cacheinfra.CloseImmediate)
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Capacity  int    `yaml:"capacity" json:"capacity"`
	Presize   int    `yaml:"presize" json:"presize"`
	CloseMode string `yaml:"close_mode" json:"close_mode"`
	HashSeed  uint64 `yaml:"hash_seed" json:"hash_seed"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return convertFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	_, err := c.toInternal()
	return err
}

// NewStatementCache constructs the default cache implementation using the provided configuration.
func NewStatementCache(cfg Config, opts ...Option) (StatementCache, error) {
	return New(cfg, opts...)
}

func (c Config) toInternal() (cacheinfra.Config, error) {
	mode, err := cacheinfra.ParseCloseMode(c.CloseMode)
	if err != nil {
		return cacheinfra.Config{}, err
	}

	cfg := cacheinfra.Config{
		Capacity:  c.Capacity,
		Presize:   c.Presize,
		CloseMode: mode,
		HashSeed:  c.HashSeed,
	}
	return cfg, cfg.Validate()
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	return Config{
		Capacity:  cfg.Capacity,
		Presize:   cfg.Presize,
		CloseMode: string(cfg.CloseMode),
		HashSeed:  cfg.HashSeed,
	}
}
