package di

import (
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-stmt-cache/cache"
	"github.com/goliatone/go-stmt-cache/internal/cacheinfra"
	"github.com/goliatone/go-stmt-cache/pkg/logging"
)

// Config describes one pooled data source and its statement cache.
type Config struct {
	Name      string         `yaml:"name" json:"name"`
	Driver    string         `yaml:"driver" json:"driver"`
	DSN       string         `yaml:"dsn" json:"dsn"`
	Username  string         `yaml:"username" json:"username"`
	Password  string         `yaml:"password" json:"-"`
	Isolation string         `yaml:"isolation" json:"isolation"`
	Pool      PoolConfig     `yaml:"pool" json:"pool"`
	Cache     cache.Config   `yaml:"cache" json:"cache"`
	Logging   logging.Config `yaml:"logging" json:"logging"`

	// Params are driver parameters appended to the DSN as given, e.g.
	// sslmode for postgres or _busy_timeout for sqlite3.
	Params map[string]string `yaml:"params" json:"params"`
}

// PoolConfig maps onto the database/sql pool settings.
type PoolConfig struct {
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultConfig returns a sqlite3 configuration without a DSN.
func DefaultConfig() Config {
	return Config{
		Name:   "default",
		Driver: DriverSQLite3,
		Pool: PoolConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Cache:   cache.DefaultConfig(),
		Logging: logging.DefaultConfig(),
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if c.Driver == "" {
		return &cacheinfra.ConfigError{Field: "Driver", Message: "must not be empty"}
	}
	if c.DSN == "" {
		return &cacheinfra.ConfigError{Field: "DSN", Message: "must not be empty"}
	}
	if c.Pool.MaxOpenConns < 0 {
		return &cacheinfra.ConfigError{Field: "Pool.MaxOpenConns", Message: "must not be negative"}
	}
	if c.Pool.MaxIdleConns < 0 {
		return &cacheinfra.ConfigError{Field: "Pool.MaxIdleConns", Message: "must not be negative"}
	}
	if c.Pool.ConnMaxLifetime < 0 {
		return &cacheinfra.ConfigError{Field: "Pool.ConnMaxLifetime", Message: "must not be negative"}
	}
	if c.Pool.ConnMaxIdleTime < 0 {
		return &cacheinfra.ConfigError{Field: "Pool.ConnMaxIdleTime", Message: "must not be negative"}
	}
	if _, err := ParseIsolation(c.Isolation); err != nil {
		return err
	}
	return c.Cache.Validate()
}

var isolationLevels = map[string]sql.IsolationLevel{
	"":                 sql.LevelDefault,
	"default":          sql.LevelDefault,
	"read_uncommitted": sql.LevelReadUncommitted,
	"read_committed":   sql.LevelReadCommitted,
	"write_committed":  sql.LevelWriteCommitted,
	"repeatable_read":  sql.LevelRepeatableRead,
	"snapshot":         sql.LevelSnapshot,
	"serializable":     sql.LevelSerializable,
	"linearizable":     sql.LevelLinearizable,
}

// ParseIsolation converts an isolation name such as "read_committed" or
// "READ COMMITTED" into a sql.IsolationLevel.
func ParseIsolation(s string) (sql.IsolationLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	name = strings.TrimPrefix(name, "transaction_")

	level, ok := isolationLevels[name]
	if !ok {
		return sql.LevelDefault, &cacheinfra.ConfigError{
			Field:   "Isolation",
			Message: fmt.Sprintf("unknown isolation level %q", s),
		}
	}
	return level, nil
}

// Settings keys understood by FromSettings.
const (
	SettingDriver          = "connection.driver"
	SettingURL             = "connection.url"
	SettingUsername        = "connection.username"
	SettingPassword        = "connection.password"
	SettingIsolation       = "connection.isolation"
	SettingName            = "connection.name"
	SettingMaxOpenConns    = "pool.max_open_conns"
	SettingMaxIdleConns    = "pool.max_idle_conns"
	SettingConnMaxLifetime = "pool.conn_max_lifetime"
	SettingConnMaxIdleTime = "pool.conn_max_idle_time"
	SettingCacheCapacity   = "cache.capacity"
	SettingCachePresize    = "cache.presize"
	SettingCacheCloseMode  = "cache.close_mode"
	SettingLogLevel        = "logging.level"

	// SettingParamPrefix marks a driver parameter: connection.param.sslmode
	// becomes the DSN parameter sslmode.
	SettingParamPrefix = "connection.param."
)

// settingNamespaces are the prefixes FromSettings owns. An unrecognised key
// inside one of them is an error; keys outside them belong to someone else.
var settingNamespaces = []string{"connection.", "pool.", "cache.", "logging."}

// FromSettings translates a flat ORM-style settings map into a Config,
// starting from DefaultConfig. Keys under SettingParamPrefix pass through to
// the driver as DSN parameters. Keys outside the connection, pool, cache and
// logging namespaces are ignored. The result is not validated.
func FromSettings(settings map[string]string) (Config, error) {
	cfg := DefaultConfig()

	str := map[string]*string{
		SettingDriver:         &cfg.Driver,
		SettingURL:            &cfg.DSN,
		SettingUsername:       &cfg.Username,
		SettingPassword:       &cfg.Password,
		SettingIsolation:      &cfg.Isolation,
		SettingName:           &cfg.Name,
		SettingCacheCloseMode: &cfg.Cache.CloseMode,
		SettingLogLevel:       &cfg.Logging.Level,
	}
	ints := map[string]*int{
		SettingMaxOpenConns:  &cfg.Pool.MaxOpenConns,
		SettingMaxIdleConns:  &cfg.Pool.MaxIdleConns,
		SettingCacheCapacity: &cfg.Cache.Capacity,
		SettingCachePresize:  &cfg.Cache.Presize,
	}
	durations := map[string]*time.Duration{
		SettingConnMaxLifetime: &cfg.Pool.ConnMaxLifetime,
		SettingConnMaxIdleTime: &cfg.Pool.ConnMaxIdleTime,
	}

	for key, raw := range settings {
		value := strings.TrimSpace(raw)
		switch {
		case str[key] != nil:
			*str[key] = value
		case ints[key] != nil:
			n, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, &cacheinfra.ConfigError{Field: key, Message: fmt.Sprintf("invalid integer %q", raw)}
			}
			*ints[key] = n
		case durations[key] != nil:
			d, err := parseDuration(value)
			if err != nil {
				return Config{}, &cacheinfra.ConfigError{Field: key, Message: fmt.Sprintf("invalid duration %q", raw)}
			}
			*durations[key] = d
		case strings.HasPrefix(key, SettingParamPrefix):
			name := strings.TrimPrefix(key, SettingParamPrefix)
			if name == "" {
				return Config{}, &cacheinfra.ConfigError{Field: key, Message: "missing parameter name"}
			}
			if cfg.Params == nil {
				cfg.Params = make(map[string]string)
			}
			cfg.Params[name] = value
		case ownedSetting(key):
			return Config{}, &cacheinfra.ConfigError{Field: key, Message: "unknown setting"}
		}
	}
	return cfg, nil
}

func ownedSetting(key string) bool {
	for _, ns := range settingNamespaces {
		if strings.HasPrefix(key, ns) {
			return true
		}
	}
	return false
}

// parseDuration accepts Go durations and bare integers as milliseconds.
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// LoadConfig reads a YAML file over DefaultConfig. ${VAR} references are
// replaced with environment values before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration over DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	content := substituteEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func substituteEnvVars(content string) string {
	return envRef.ReplaceAllStringFunc(content, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}
