// Package fixtures holds the actors demo schema shared by the CLI, the
// runnable example and the tests.
package fixtures

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

// ActorsSchema creates and fills the actors table.
//
//go:embed actors.sql
var ActorsSchema string

// SplitStatements splits a SQL script on semicolons that end a line.
// Blank statements and "--" comment lines are dropped.
func SplitStatements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)

	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(cur.String()), ";")
			if stmt != "" {
				out = append(out, stmt)
			}
			cur.Reset()
		}
	}

	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Deploy runs every statement of script against db, one at a time.
func Deploy(ctx context.Context, db *sql.DB, script string) error {
	for _, stmt := range SplitStatements(script) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("deploy statement %q: %w", stmt, err)
		}
	}
	return nil
}

// DeployActors creates and fills the actors table in db.
func DeployActors(ctx context.Context, db *sql.DB) error {
	return Deploy(ctx, db, ActorsSchema)
}
