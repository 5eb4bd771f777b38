package di

import (
	"database/sql/driver"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-stmt-cache/stmtdriver"
)

// Built-in driver names.
const (
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// Driver knows how to reach one kind of database.
type Driver struct {
	// Connector returns an unwrapped connector for cfg. It must not dial.
	Connector func(cfg Config) (driver.Connector, error)
	// Dialect returns the bun dialect for the ORM session layer.
	Dialect func() schema.Dialect
}

// Registry maps driver names to Drivers.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry returns a registry holding the sqlite3, postgres (lib/pq) and
// pgx drivers.
func NewRegistry() *Registry {
	r := &Registry{drivers: make(map[string]Driver)}
	r.Register(DriverSQLite3, Driver{
		Connector: sqliteConnector,
		Dialect:   func() schema.Dialect { return sqlitedialect.New() },
	})
	r.Register(DriverPostgres, Driver{
		Connector: postgresConnector,
		Dialect:   func() schema.Dialect { return pgdialect.New() },
	})
	r.Register(DriverPgx, Driver{
		Connector: pgxConnector,
		Dialect:   func() schema.Dialect { return pgdialect.New() },
	})
	return r
}

// Register adds or replaces a driver.
func (r *Registry) Register(name string, d Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[name] = d
}

// Lookup returns the driver registered under name.
func (r *Registry) Lookup(name string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[name]
	if !ok {
		return Driver{}, fmt.Errorf("unknown driver %q (registered: %s)", name, strings.Join(r.namesLocked(), ", "))
	}
	return d, nil
}

// Names returns the registered driver names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sqlite3 has no user accounts in the default build; credentials are ignored.
func sqliteConnector(cfg Config) (driver.Connector, error) {
	return stmtdriver.OpenConnector(&sqlite3.SQLiteDriver{}, withQueryParams(cfg.DSN, cfg.Params))
}

func postgresConnector(cfg Config) (driver.Connector, error) {
	dsn, err := withPostgresParams(cfg.DSN, cfg.Params)
	if err != nil {
		return nil, err
	}
	dsn, err = withCredentials(dsn, cfg.Username, cfg.Password)
	if err != nil {
		return nil, err
	}
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	return connector, nil
}

func pgxConnector(cfg Config) (driver.Connector, error) {
	dsn, err := withPostgresParams(cfg.DSN, cfg.Params)
	if err != nil {
		return nil, err
	}
	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	if cfg.Username != "" {
		cc.User = cfg.Username
	}
	if cfg.Password != "" {
		cc.Password = cfg.Password
	}
	return stdlib.GetConnector(*cc), nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// withQueryParams appends params to dsn as a query string, the form sqlite3
// file DSNs take.
func withQueryParams(dsn string, params map[string]string) string {
	if len(params) == 0 {
		return dsn
	}
	q := make(url.Values, len(params))
	for name, value := range params {
		q.Set(name, value)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + q.Encode()
}

// withPostgresParams adds params to a postgres DSN in either URL or
// key=value form. Params override values already in the DSN.
func withPostgresParams(dsn string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return dsn, nil
	}

	if isPostgresURL(dsn) {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres url: %w", err)
		}
		q := u.Query()
		for name, value := range params {
			q.Set(name, value)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := []string{strings.TrimSpace(dsn)}
	for _, name := range names {
		parts = append(parts, name+"="+quoteValue(params[name]))
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// withCredentials sets user and password on a postgres DSN in either URL or
// key=value form. Empty values leave the DSN untouched.
func withCredentials(dsn, user, password string) (string, error) {
	if user == "" && password == "" {
		return dsn, nil
	}

	if isPostgresURL(dsn) {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres url: %w", err)
		}
		if user == "" && u.User != nil {
			user = u.User.Username()
		}
		if password == "" && u.User != nil {
			password, _ = u.User.Password()
		}
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
		return u.String(), nil
	}

	parts := []string{strings.TrimSpace(dsn)}
	if user != "" {
		parts = append(parts, "user="+quoteValue(user))
	}
	if password != "" {
		parts = append(parts, "password="+quoteValue(password))
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
