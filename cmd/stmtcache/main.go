package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-stmt-cache/cache"
	"github.com/goliatone/go-stmt-cache/internal/fixtures"
	"github.com/goliatone/go-stmt-cache/pkg/di"
)

var version = "0.1.0"

var actorIDs = []int{1, 2, 3, 4, 5, 10, 58, 61, 71, 132}

// benchFlags holds the bench command line.
type benchFlags struct {
	configFile string
	driver     string
	dsn        string
	workers    int
	duration   time.Duration
	statements int
	capacity   int
	closeMode  string
	maxOpen    int
	logLevel   string
}

// BenchReport is printed as JSON when a bench run finishes.
type BenchReport struct {
	Driver     string      `json:"driver"`
	Workers    int         `json:"workers"`
	Statements int         `json:"statements"`
	Elapsed    string      `json:"elapsed"`
	Queries    uint64      `json:"queries"`
	PerSecond  float64     `json:"queries_per_second"`
	Cache      cache.Stats `json:"cache"`
}

func main() {
	root := &cobra.Command{
		Use:           "stmtcache",
		Short:         "Prepared statement cache for database/sql pools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stmtcache v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "drivers",
		Short: "List available database drivers",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range di.NewRegistry().Names() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	var flags benchFlags
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a concurrent lookup workload through the statement cache",
		Long: `Run concurrent primary-key lookups through a cached pool and print the
cache counters as JSON.

Without --dsn the workload runs against a throwaway sqlite3 database seeded
with the actors table.

Example:
  stmtcache bench --workers 8 --duration 5s --statements 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := benchConfig(cmd, flags)
			if err != nil {
				return err
			}
			report, err := runBench(cmd.Context(), cfg, flags)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	benchCmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "Path to a YAML data source configuration")
	benchCmd.Flags().StringVar(&flags.driver, "driver", di.DriverSQLite3, "Database driver (see 'stmtcache drivers')")
	benchCmd.Flags().StringVar(&flags.dsn, "dsn", "", "Data source name; empty seeds a temporary sqlite3 database")
	benchCmd.Flags().IntVarP(&flags.workers, "workers", "w", runtime.NumCPU(), "Concurrent workers")
	benchCmd.Flags().DurationVarP(&flags.duration, "duration", "d", 3*time.Second, "How long to run the workload")
	benchCmd.Flags().IntVar(&flags.statements, "statements", 4, "Number of distinct statements issued")
	benchCmd.Flags().IntVar(&flags.capacity, "capacity", cache.DefaultConfig().Capacity, "Statement cache capacity")
	benchCmd.Flags().StringVar(&flags.closeMode, "close-mode", cache.CloseDeferred, "Close mode for invalidated statements (deferred, immediate)")
	benchCmd.Flags().IntVar(&flags.maxOpen, "max-open", 4, "Maximum open connections")
	benchCmd.Flags().StringVar(&flags.logLevel, "log-level", "error", "Log level (debug, info, warn, error)")
	root.AddCommand(benchCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// benchConfig starts from the config file, or defaults, and applies the
// flags the user set explicitly.
func benchConfig(cmd *cobra.Command, flags benchFlags) (di.Config, error) {
	cfg := di.DefaultConfig()
	if flags.configFile != "" {
		loaded, err := di.LoadConfig(flags.configFile)
		if err != nil {
			return di.Config{}, err
		}
		cfg = loaded
	}

	set := cmd.Flags().Changed
	if flags.configFile == "" || set("driver") {
		cfg.Driver = flags.driver
	}
	if set("dsn") {
		cfg.DSN = flags.dsn
	}
	if flags.configFile == "" || set("capacity") {
		cfg.Cache.Capacity = flags.capacity
	}
	if flags.configFile == "" || set("close-mode") {
		cfg.Cache.CloseMode = flags.closeMode
	}
	if flags.configFile == "" || set("max-open") {
		cfg.Pool.MaxOpenConns = flags.maxOpen
		cfg.Pool.MaxIdleConns = flags.maxOpen
	}
	if flags.configFile == "" || set("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	cfg.Name = "bench"

	if cfg.DSN == "" {
		if cfg.Driver != di.DriverSQLite3 {
			return di.Config{}, fmt.Errorf("--dsn is required for driver %q", cfg.Driver)
		}
		path, err := seedSQLite()
		if err != nil {
			return di.Config{}, err
		}
		cfg.DSN = path
	}
	return cfg, nil
}

// seedSQLite writes the actors table into a new temporary database file.
func seedSQLite() (string, error) {
	dir, err := os.MkdirTemp("", "stmtcache-bench-")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "actors.db")

	db, err := sql.Open(di.DriverSQLite3, path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if err := fixtures.DeployActors(context.Background(), db); err != nil {
		return "", fmt.Errorf("seed actors: %w", err)
	}
	return path, nil
}

func runBench(ctx context.Context, cfg di.Config, flags benchFlags) (BenchReport, error) {
	if flags.workers <= 0 || flags.statements <= 0 {
		return BenchReport{}, fmt.Errorf("workers and statements must be positive")
	}

	container, err := di.NewContainer(cfg)
	if err != nil {
		return BenchReport{}, err
	}
	defer container.Stop()

	if err := container.Start(ctx); err != nil {
		return BenchReport{}, err
	}
	logger := container.Logger()

	queries := make([]string, flags.statements)
	for i := range queries {
		queries[i] = fmt.Sprintf("SELECT first_name, last_name FROM actors WHERE actor_id = ? /* q%d */", i)
	}

	runCtx, cancel := context.WithTimeout(ctx, flags.duration)
	defer cancel()

	var done atomic.Uint64
	db := container.DB()
	start := time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	for w := 0; w < flags.workers; w++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				query := queries[rand.IntN(len(queries))]
				id := actorIDs[rand.IntN(len(actorIDs))]

				var first, last string
				err := db.QueryRowContext(gctx, query, id).Scan(&first, &last)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("lookup actor %d: %w", id, err)
				}
				done.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BenchReport{}, err
	}
	elapsed := time.Since(start)

	stats := container.StatementCache().Stats()
	logger.Info("bench finished",
		zap.Duration("elapsed", elapsed),
		zap.Uint64("queries", done.Load()),
		zap.Uint64("creates", stats.Creates),
	)

	return BenchReport{
		Driver:     cfg.Driver,
		Workers:    flags.workers,
		Statements: flags.statements,
		Elapsed:    elapsed.Round(time.Millisecond).String(),
		Queries:    done.Load(),
		PerSecond:  float64(done.Load()) / elapsed.Seconds(),
		Cache:      stats,
	}, nil
}
