// Command migrate brings a chainledger database schema up to date.
//
// It reads database.url the same way ledgerd does (configs/ledgerd.yaml,
// then CHAINLEDGER_DATABASE_URL, then --database-url) and applies every
// migrations/NNN_name.up.sql not yet recorded in schema_migrations. Each
// migration runs in its own transaction together with its bookkeeping row.
//
// Usage:
//
//	go run ./cmd/migrate            # same as "up"
//	go run ./cmd/migrate status
//	CHAINLEDGER_DATABASE_URL=postgres://... go run ./cmd/migrate up --dir ./migrations
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmerrifield20/chainledger/internal/config"
)

var (
	dir     string
	timeout time.Duration
	v       = config.New()
	logger  = zap.NewNop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply chainledger schema migrations",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error { return runUp(cmd) },
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  func(cmd *cobra.Command, args []string) error { return runUp(cmd) },
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether each is applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		m, all, err := open(ctx)
		if err != nil {
			return err
		}
		defer m.close()

		applied, err := m.applied(ctx)
		if err != nil {
			return err
		}
		for _, mg := range all {
			state := "pending"
			if applied[mg.Version] {
				state = "applied"
			}
			fmt.Printf("%-8s %s\n", state, mg.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "Directory holding NNN_name.up.sql files")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall time limit")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL DSN (overrides database.url)")
	_ = v.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))
	rootCmd.AddCommand(upCmd, statusCmd)
}

func runUp(cmd *cobra.Command) error {
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	m, all, err := open(ctx)
	if err != nil {
		return err
	}
	defer m.close()

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}
	todo := pending(all, applied)
	if len(todo) == 0 {
		logger.Info("schema up to date", zap.Int("migrations", len(all)))
		return nil
	}
	for _, mg := range todo {
		start := time.Now()
		if err := m.apply(ctx, mg); err != nil {
			return err
		}
		logger.Info("migration applied",
			zap.Int64("version", mg.Version),
			zap.String("file", mg.Name),
			zap.Duration("took", time.Since(start)),
		)
	}
	logger.Info("migrations complete", zap.Int("applied", len(todo)))
	return nil
}

// open loads config and migration files, then connects.
func open(ctx context.Context) (*migrator, []migration, error) {
	v.Set("ledger.backend", config.BackendPostgres)
	cfg, err := config.Load(v, logger)
	if err != nil {
		return nil, nil, err
	}
	all, err := loadMigrations(os.DirFS(dir))
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	m := &migrator{pool: pool}
	if err := m.ensureTable(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return m, all, nil
}

// ── Migration files ──────────────────────────────────────────────────────────

type migration struct {
	Version int64
	Name    string
	SQL     string
}

// loadMigrations reads NNN_name.up.sql (or NNN_name.sql) files from the root
// of fsys in version order. Down migrations and other files are ignored.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	seen := make(map[int64]string)
	var out []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, ".down.sql") {
			continue
		}
		ver, err := versionFromFile(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if prev, dup := seen[ver]; dup {
			return nil, fmt.Errorf("%s and %s share version %d", prev, name, ver)
		}
		seen[ver] = name
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, migration{Version: ver, Name: name, SQL: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// versionFromFile parses the numeric prefix: "012_add_index.up.sql" is 12.
func versionFromFile(name string) (int64, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok || prefix == "" {
		return 0, errors.New("name must look like NNN_description.up.sql")
	}
	ver, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || ver <= 0 {
		return 0, fmt.Errorf("bad version prefix %q", prefix)
	}
	return ver, nil
}

func pending(all []migration, applied map[int64]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// ── Database ─────────────────────────────────────────────────────────────────

type migrator struct {
	pool *pgxpool.Pool
}

func (m *migrator) close() { m.pool.Close() }

func (m *migrator) ensureTable(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint NOT NULL,
			dirty   boolean NOT NULL,
			PRIMARY KEY (version)
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// applied returns the recorded versions. A dirty row means an earlier run
// died mid-migration and needs manual repair.
func (m *migrator) applied(ctx context.Context) (map[int64]bool, error) {
	rows, err := m.pool.Query(ctx, `SELECT version, dirty FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var ver int64
		var dirty bool
		if err := rows.Scan(&ver, &dirty); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		if dirty {
			return nil, fmt.Errorf("schema_migrations: version %d is dirty; repair it and clear the flag", ver)
		}
		out[ver] = true
	}
	return out, rows.Err()
}

func (m *migrator) apply(ctx context.Context, mg migration) error {
	return pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mg.SQL); err != nil {
			return fmt.Errorf("apply %s: %w", mg.Name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)`, mg.Version,
		); err != nil {
			return fmt.Errorf("record %s: %w", mg.Name, err)
		}
		return nil
	})
}
