package stmtdriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-stmt-cache/cache"
	"github.com/goliatone/go-stmt-cache/pkg/testsupport"
)

func newCache(t *testing.T) *cache.ConcurrentCache {
	t.Helper()

	c, err := cache.New(cache.DefaultConfig())
	require.NoError(t, err)
	return c
}

func openFakeDB(t *testing.T, fd *testsupport.FakeDriver, c cache.StatementCache, opts ...Option) *sql.DB {
	t.Helper()

	inner, err := OpenConnector(fd, "fake")
	require.NoError(t, err)
	return sql.OpenDB(NewConnector(inner, c, opts...))
}

func TestConnector_ReusesStatementOnSameConnection(t *testing.T) {
	ctx := context.Background()
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	db := openFakeDB(t, fd, c)
	defer db.Close()
	db.SetMaxOpenConns(1)

	for i := 0; i < 3; i++ {
		var got string
		require.NoError(t, db.QueryRowContext(ctx, "select 1").Scan(&got))
		assert.Equal(t, "select 1", got)
	}

	res, err := db.ExecContext(ctx, "update t set a = 1")
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.Equal(t, 1, fd.PrepareCount("select 1"))
	assert.Equal(t, 1, fd.PrepareCount("update t set a = 1"))
	assert.Equal(t, 2, c.Len())
	assert.Zero(t, fd.StmtCloses.Load(), "cached statements stay open while the connection lives")

	stats := c.Stats()
	assert.EqualValues(t, 2, stats.Creates)
	assert.EqualValues(t, 2, stats.Hits)
}

func TestConnector_CloseReleasesAllStatements(t *testing.T) {
	ctx := context.Background()
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	hooks := NewHooks(c, nil)
	db := openFakeDB(t, fd, c, WithLifecycle(hooks))
	db.SetMaxOpenConns(2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var got string
			if err := db.QueryRowContext(ctx, "select 1").Scan(&got); err != nil {
				t.Errorf("query failed: %v", err)
			}
		}()
	}
	wg.Wait()

	_, err := db.ExecContext(ctx, "delete from t")
	require.NoError(t, err)

	require.NoError(t, db.Close())

	assert.Zero(t, c.Len())
	assert.Equal(t, fd.Prepares.Load(), fd.StmtCloses.Load())
	assert.Equal(t, fd.Opens.Load(), fd.ConnCloses.Load())
	assert.EqualValues(t, fd.Opens.Load(), hooks.Destroyed())
}

func TestConnector_BorrowedStatementFallsBackToUncached(t *testing.T) {
	ctx := context.Background()
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	db := openFakeDB(t, fd, c)
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	s1, err := tx.PrepareContext(ctx, "select 2")
	require.NoError(t, err)
	s2, err := tx.PrepareContext(ctx, "select 2")
	require.NoError(t, err)

	assert.Equal(t, 2, fd.PrepareCount("select 2"))
	assert.Equal(t, 1, c.Len())
	assert.EqualValues(t, 1, c.Stats().Conflicts)

	require.NoError(t, s2.Close())
	assert.EqualValues(t, 1, fd.StmtCloses.Load(), "uncached statement is closed on return")

	require.NoError(t, s1.Close())
	assert.EqualValues(t, 1, fd.StmtCloses.Load(), "cached statement stays open")

	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, c.Len())
}

func TestConnector_PrepareErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	db := openFakeDB(t, fd, c)
	defer db.Close()

	_, err := db.ExecContext(ctx, "fail please")
	require.ErrorIs(t, err, testsupport.ErrFakePrepare)
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Creates)
}

func TestConnector_DiscardedConnectionInvalidatesStatements(t *testing.T) {
	ctx := context.Background()
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	db := openFakeDB(t, fd, c)
	defer db.Close()
	db.SetMaxIdleConns(0)

	for i := 0; i < 2; i++ {
		var got string
		require.NoError(t, db.QueryRowContext(ctx, "select 3").Scan(&got))
	}

	assert.Equal(t, 2, fd.PrepareCount("select 3"), "each new connection prepares its own statement")
	assert.EqualValues(t, 2, fd.StmtCloses.Load())
	assert.Zero(t, c.Len())
	assert.EqualValues(t, 2, c.Stats().Invalidations)
}

func TestConnector_ResetSessionReportsReturnedConnection(t *testing.T) {
	ctx := context.Background()
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	hooks := NewHooks(c, nil)
	db := openFakeDB(t, fd, c, WithLifecycle(hooks))
	defer db.Close()
	db.SetMaxOpenConns(1)

	for i := 0; i < 3; i++ {
		var got string
		require.NoError(t, db.QueryRowContext(ctx, "select 4").Scan(&got))
	}

	assert.Positive(t, hooks.Returned())
	assert.Equal(t, fd.Resets.Load(), int64(hooks.Returned()))
	assert.Zero(t, hooks.Destroyed())
	assert.Equal(t, 1, c.Len())
}

func TestStmt_NamedParametersRejectedWithoutDriverSupport(t *testing.T) {
	ctx := context.Background()
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	db := openFakeDB(t, fd, c)
	defer db.Close()

	_, err := db.ExecContext(ctx, "update t set a = :a", sql.Named("a", 1))
	require.ErrorIs(t, err, errNamedParams)

	handle := firstHandle(t, c)
	assert.Equal(t, cache.StateAvailable, handle.State(), "failed exec still returns the statement")
}

func TestConn_BeginTxFallback(t *testing.T) {
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	inner, err := OpenConnector(fd, "fake")
	require.NoError(t, err)

	raw, err := NewConnector(inner, c).Connect(context.Background())
	require.NoError(t, err)
	conn := raw.(*Conn)
	defer conn.Close()

	_, err = conn.BeginTx(context.Background(), driverTxOptions(sql.LevelSerializable, false))
	assert.ErrorIs(t, err, errIsolationUnsupported)

	_, err = conn.BeginTx(context.Background(), driverTxOptions(sql.LevelDefault, true))
	assert.ErrorIs(t, err, errReadOnlyUnsupported)

	tx, err := conn.BeginTx(context.Background(), driverTxOptions(sql.LevelDefault, false))
	require.NoError(t, err)
	assert.NoError(t, tx.Commit())
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	hooks := NewHooks(c, nil)
	inner, err := OpenConnector(fd, "fake")
	require.NoError(t, err)

	raw, err := NewConnector(inner, c, WithLifecycle(hooks)).Connect(context.Background())
	require.NoError(t, err)
	conn := raw.(*Conn)

	stmt, err := conn.PrepareContext(context.Background(), "select 5")
	require.NoError(t, err)
	require.NoError(t, stmt.Close())
	assert.True(t, conn.IsValid())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.False(t, conn.IsValid())
	assert.EqualValues(t, 1, hooks.Destroyed())
	assert.EqualValues(t, 1, fd.ConnCloses.Load())
	assert.Zero(t, c.Len())

	_, err = conn.PrepareContext(context.Background(), "select 5")
	assert.Error(t, err)
}

func TestConn_DistinctIdentityPerConnection(t *testing.T) {
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	inner, err := OpenConnector(fd, "fake")
	require.NoError(t, err)
	connector := NewConnector(inner, c)

	a, err := connector.Connect(context.Background())
	require.NoError(t, err)
	b, err := connector.Connect(context.Background())
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	assert.NotEqual(t, a.(*Conn).ID(), b.(*Conn).ID())

	sa, err := a.Prepare("select 6")
	require.NoError(t, err)
	sb, err := b.Prepare("select 6")
	require.NoError(t, err)

	assert.True(t, sa.(*Stmt).Cached())
	assert.True(t, sb.(*Stmt).Cached())
	assert.NotSame(t, sa.(*Stmt).Handle(), sb.(*Stmt).Handle())
	assert.Equal(t, 2, c.Len())

	require.NoError(t, sa.Close())
	require.NoError(t, sa.Close(), "second close is a no-op")
	require.NoError(t, sb.Close())
}

func TestDriver_RegisteredWrapper(t *testing.T) {
	fd := testsupport.NewFakeDriver()
	c := newCache(t)
	d := WrapDriver(fd, c)
	name := registerDriver(t, d)

	db, err := sql.Open(name, "fake")
	require.NoError(t, err)
	defer db.Close()

	assert.Same(t, d, db.Driver())

	var got string
	require.NoError(t, db.QueryRow("select 7").Scan(&got))
	require.NoError(t, db.QueryRow("select 7").Scan(&got))
	assert.Equal(t, 1, fd.PrepareCount("select 7"))

	conn, err := d.Open("fake")
	require.NoError(t, err)
	assert.IsType(t, &Conn{}, conn)
	require.NoError(t, conn.Close())
}

// registrations keeps driver names unique across repeated runs in one
// process, since sql.Register panics on a duplicate name.
var registrations atomic.Int64

func registerDriver(t *testing.T, d driver.Driver) string {
	t.Helper()

	name := fmt.Sprintf("stmtcache-%s-%d", t.Name(), registrations.Add(1))
	sql.Register(name, d)
	return name
}

func driverTxOptions(level sql.IsolationLevel, readOnly bool) driver.TxOptions {
	return driver.TxOptions{Isolation: driver.IsolationLevel(level), ReadOnly: readOnly}
}

func firstHandle(t *testing.T, c *cache.ConcurrentCache) *cache.Handle {
	t.Helper()

	var found *cache.Handle
	require.Equal(t, 1, c.Len())
	c.Range(func(_ cache.Key, h *cache.Handle) bool {
		found = h
		return false
	})
	require.NotNil(t, found)
	return found
}
