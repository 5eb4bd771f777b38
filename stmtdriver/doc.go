// Package stmtdriver plugs a cache.StatementCache into database/sql.
//
// database/sql is the connection pool. This package decorates the driver
// underneath it so that every physical connection the pool opens gets its
// own cache.ConnID, and every statement the pool prepares on that connection
// goes through the shared cache:
//
//	inner, _ := stmtdriver.OpenConnector(&sqlite3.SQLiteDriver{}, "file:app.db")
//	c, _ := cache.New(cache.DefaultConfig())
//	db := sql.OpenDB(stmtdriver.NewConnector(inner, c))
//
// The decorated connection implements neither driver.QueryerContext nor
// driver.ExecerContext, so database/sql always prepares, runs and closes a
// statement. Prepare borrows the cached statement; closing the statement
// (Rows.Close, the end of Exec, Stmt.Close) hands it back.
//
// Pool events reach the cache through cache.ConnectionLifecycle:
//
//   - ResetSession, called by database/sql before reusing a pooled
//     connection, reports the connection as returned.
//   - Close, called when database/sql discards a connection, reports it as
//     destroyed, which invalidates all of its cached statements before the
//     driver connection is closed.
package stmtdriver
