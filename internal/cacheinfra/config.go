package cacheinfra

// CloseMode selects what happens to a borrowed statement when its connection
// is invalidated.
type CloseMode string

const (
	// CloseDeferred marks a borrowed handle evicted and closes the raw
	// statement once the borrower releases it.
	CloseDeferred CloseMode = "deferred"

	// CloseImmediate closes the raw statement at invalidation time even if it
	// is borrowed. The borrower's release then reports an invalid state.
	CloseImmediate CloseMode = "immediate"
)

// Config holds the tuning options for the statement cache.
type Config struct {
	// Capacity is the maximum number of cached statements across all
	// connections. Must be greater than 0.
	Capacity int

	// Presize hints the initial size of the underlying map.
	// Zero lets the map pick its own default. Must not be negative.
	Presize int

	// CloseMode controls how invalidation treats borrowed statements.
	// Default: CloseDeferred
	CloseMode CloseMode

	// HashSeed is mixed into every key hash. Zero is a valid seed.
	HashSeed uint64
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:  1024,
		Presize:   64,
		CloseMode: CloseDeferred,
	}
}

// Validate checks if the configuration values are valid.
// Returns an error if any configuration parameter is invalid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.Presize < 0 {
		return &ConfigError{Field: "Presize", Message: "must be non-negative"}
	}

	switch c.CloseMode {
	case CloseDeferred, CloseImmediate:
	default:
		return &ConfigError{Field: "CloseMode", Message: "must be one of deferred, immediate"}
	}

	return nil
}

// ParseCloseMode maps a textual mode onto a CloseMode. An empty string yields
// the default mode.
func ParseCloseMode(s string) (CloseMode, error) {
	switch CloseMode(s) {
	case "":
		return CloseDeferred, nil
	case CloseDeferred, CloseImmediate:
		return CloseMode(s), nil
	}
	return "", &ConfigError{Field: "CloseMode", Message: "unknown mode " + s}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
