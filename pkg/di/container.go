package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-stmt-cache/cache"
	"github.com/goliatone/go-stmt-cache/pkg/logging"
	"github.com/goliatone/go-stmt-cache/pkg/metrics"
	"github.com/goliatone/go-stmt-cache/stmtdriver"
)

// ErrNotStarted is returned by operations that need an open pool.
var ErrNotStarted = errors.New("container not started")

// Option configures a Container.
type Option func(*Container)

// WithLogger overrides the logger built from Config.Logging.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegistry replaces the built-in driver registry.
func WithRegistry(r *Registry) Option {
	return func(c *Container) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithRegisterer registers the cache metrics collector on Start and
// unregisters it on Stop.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) {
		c.registerer = reg
	}
}

// Container owns one data source: the statement cache, the decorated
// database/sql pool on top of it and the bun ORM sessions built from that
// pool. NewContainer configures, Start opens, Stop closes.
type Container struct {
	config     Config
	isolation  sql.IsolationLevel
	logger     *zap.Logger
	registry   *Registry
	registerer prometheus.Registerer

	cache     *cache.ConcurrentCache
	hooks     *stmtdriver.Hooks
	collector *metrics.Collector

	mu        sync.RWMutex
	connector *stmtdriver.Connector
	db        *sql.DB
	orm       *bun.DB
	stopped   bool
}

// NewContainer validates config and builds the statement cache. No
// connection is opened until Start.
func NewContainer(config Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	isolation, err := ParseIsolation(config.Isolation)
	if err != nil {
		return nil, err
	}

	c := &Container{
		config:    config,
		isolation: isolation,
		registry:  NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		logger, _, err := logging.New(config.Logging)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}
	c.logger = c.logger.With(zap.String("pool", config.Name))

	if _, err := c.registry.Lookup(config.Driver); err != nil {
		return nil, err
	}

	stmts, err := cache.New(config.Cache, cache.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.cache = stmts
	c.hooks = stmtdriver.NewHooks(stmts, c.logger)
	c.collector = metrics.NewCollector(config.Name, stmts)
	return c, nil
}

// NewContainerFromSettings translates settings with FromSettings and builds
// a Container from the result.
func NewContainerFromSettings(settings map[string]string, opts ...Option) (*Container, error) {
	config, err := FromSettings(settings)
	if err != nil {
		return nil, err
	}
	return NewContainer(config, opts...)
}

// Start opens the pool, verifies it with a ping and builds the ORM session
// factory. Calling Start on a started container is a no-op.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return errors.New("container already stopped")
	}
	if c.db != nil {
		return nil
	}

	drv, err := c.registry.Lookup(c.config.Driver)
	if err != nil {
		return err
	}
	inner, err := drv.Connector(c.config)
	if err != nil {
		return fmt.Errorf("open %s connector: %w", c.config.Driver, err)
	}

	connector := stmtdriver.NewConnector(inner, c.cache,
		stmtdriver.WithLogger(c.logger),
		stmtdriver.WithLifecycle(c.hooks),
	)
	db := sql.OpenDB(connector)
	pool := c.config.Pool
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping %s: %w", c.config.Driver, err)
	}

	if c.registerer != nil {
		if err := c.registerer.Register(c.collector); err != nil {
			_ = db.Close()
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	c.connector = connector
	c.db = db
	c.orm = bun.NewDB(db, drv.Dialect())
	c.logger.Info("data source started",
		zap.String("driver", c.config.Driver),
		zap.Int("max_open_conns", pool.MaxOpenConns),
		zap.Int("cache_capacity", c.cache.Capacity()),
	)
	return nil
}

// Stop closes the pool and evicts whatever the pool left in the cache.
// It is safe to call more than once.
func (c *Container) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	var err error
	if c.orm != nil {
		err = c.orm.Close()
	}
	purged := c.cache.Purge()

	if c.registerer != nil && c.db != nil {
		c.registerer.Unregister(c.collector)
	}
	c.db, c.orm, c.connector = nil, nil, nil

	c.logger.Info("data source stopped",
		zap.Int("purged", purged),
		zap.Uint64("statements_closed", c.cache.Stats().Closes),
	)
	return err
}

// Close is Stop, so a Container can be used as an io.Closer.
func (c *Container) Close() error {
	return c.Stop()
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// StatementCache returns the cache shared by every pooled connection.
func (c *Container) StatementCache() *cache.ConcurrentCache {
	return c.cache
}

// Hooks returns the pool lifecycle hooks bound to the cache.
func (c *Container) Hooks() *stmtdriver.Hooks {
	return c.hooks
}

// Collector returns the Prometheus collector over the cache stats.
func (c *Container) Collector() *metrics.Collector {
	return c.collector
}

// DB returns the pool, or nil before Start.
func (c *Container) DB() *sql.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// ORM returns the bun session factory, or nil before Start.
func (c *Container) ORM() *bun.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orm
}

// RunInTx runs fn in an ORM transaction using the configured isolation level.
func (c *Container) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	orm := c.ORM()
	if orm == nil {
		return ErrNotStarted
	}
	return orm.RunInTx(ctx, &sql.TxOptions{Isolation: c.isolation}, fn)
}

// Supports reports whether As would succeed for tag.
func (c *Container) Supports(tag Capability) bool {
	_, err := c.As(tag)
	return err == nil
}

// As returns the service registered under tag. Pool-backed services are only
// available between Start and Stop.
func (c *Container) As(tag Capability) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch tag {
	case CapabilityStatementCache:
		return c.cache, nil
	case CapabilityMetrics:
		return c.collector, nil
	case CapabilityLifecycle:
		return c.hooks, nil
	case CapabilityDB, CapabilityORM, CapabilityConnector:
		if c.db == nil {
			return nil, &CapabilityError{Capability: tag, Reason: "container not started"}
		}
	default:
		return nil, &CapabilityError{Capability: tag, Reason: "unknown capability"}
	}

	switch tag {
	case CapabilityDB:
		return c.db, nil
	case CapabilityORM:
		return c.orm, nil
	default:
		return c.connector, nil
	}
}
