package testsupport

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/goliatone/go-stmt-cache/internal/fixtures"
)

// ActorsSchema creates and fills the actors table used by integration tests.
var ActorsSchema = fixtures.ActorsSchema

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureJSON loads JSON test data from a fixture file and unmarshals it.
// The path is relative to the test package directory.
func LoadFixtureJSON(t testing.TB, path string, dest interface{}) {
	t.Helper()

	data := LoadFixture(t, path)
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture from %s: %v", path, err)
	}
}

// SplitStatements splits a SQL script into statements.
func SplitStatements(script string) []string {
	return fixtures.SplitStatements(script)
}

// DeploySchema runs every statement of script against db, one at a time.
func DeploySchema(t testing.TB, db *sql.DB, script string) {
	t.Helper()

	if err := fixtures.Deploy(context.Background(), db, script); err != nil {
		t.Fatalf("failed to deploy schema: %v", err)
	}
}

// TempDatabasePath returns a file path for a throwaway database inside the
// test's temporary directory.
func TempDatabasePath(t testing.TB, name string) string {
	t.Helper()

	return filepath.Join(t.TempDir(), name)
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}
