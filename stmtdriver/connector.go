package stmtdriver

import (
	"context"
	"database/sql/driver"
	"io"

	"go.uber.org/zap"

	"github.com/goliatone/go-stmt-cache/cache"
)

var (
	_ driver.Connector     = (*Connector)(nil)
	_ io.Closer            = (*Connector)(nil)
	_ driver.Driver        = (*Driver)(nil)
	_ driver.DriverContext = (*Driver)(nil)
)

// Option configures a Connector or Driver.
type Option func(*options)

type options struct {
	events cache.ConnectionLifecycle
	logger *zap.Logger
}

// WithLifecycle replaces the default Hooks with a custom receiver of
// connection events.
func WithLifecycle(events cache.ConnectionLifecycle) Option {
	return func(o *options) {
		o.events = events
	}
}

// WithLogger sets the logger used by the decorated connections.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(c cache.StatementCache, opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.events == nil {
		o.events = NewHooks(c, o.logger)
	}
	return o
}

// Connector decorates a driver.Connector so every connection it opens
// prepares statements through a shared cache.
type Connector struct {
	inner  driver.Connector
	driver driver.Driver
	cache  cache.StatementCache
	opts   options
}

// NewConnector wraps inner. Connections it opens share c.
func NewConnector(inner driver.Connector, c cache.StatementCache, opts ...Option) *Connector {
	return &Connector{
		inner:  inner,
		driver: inner.Driver(),
		cache:  c,
		opts:   buildOptions(c, opts),
	}
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	raw, err := c.inner.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return c.wrap(raw), nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return c.driver
}

// Cache returns the statement cache shared by the connector's connections.
func (c *Connector) Cache() cache.StatementCache {
	return c.cache
}

// Close closes the inner connector if it holds resources. database/sql calls
// it from DB.Close.
func (c *Connector) Close() error {
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Connector) wrap(raw driver.Conn) *Conn {
	conn := &Conn{
		raw:    raw,
		id:     cache.NewConnID(),
		cache:  c.cache,
		events: c.opts.events,
		logger: c.opts.logger,
	}
	conn.logger.Debug("connection opened", zap.Stringer("conn", conn.id))
	return conn
}

// Driver decorates a driver.Driver. It is meant for sql.Register; prefer
// NewConnector with sql.OpenDB otherwise.
type Driver struct {
	inner driver.Driver
	cache cache.StatementCache
	opts  []Option
}

// WrapDriver wraps inner so that connections it opens share c.
func WrapDriver(inner driver.Driver, c cache.StatementCache, opts ...Option) *Driver {
	return &Driver{inner: inner, cache: c, opts: opts}
}

// Open implements driver.Driver.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	connector, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

// OpenConnector implements driver.DriverContext.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	inner, err := OpenConnector(d.inner, dsn)
	if err != nil {
		return nil, err
	}
	c := NewConnector(inner, d.cache, d.opts...)
	c.driver = d
	return c, nil
}

// OpenConnector returns a connector for dsn, using the driver's own
// connector when it implements driver.DriverContext.
func OpenConnector(d driver.Driver, dsn string) (driver.Connector, error) {
	if dc, ok := d.(driver.DriverContext); ok {
		return dc.OpenConnector(dsn)
	}
	return dsnConnector{dsn: dsn, driver: d}, nil
}

type dsnConnector struct {
	dsn    string
	driver driver.Driver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.driver
}
