package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationStatus reports whether a migration file has been applied.
type MigrationStatus struct {
	Name    string
	Applied bool
}

// Migrator applies the numbered SQL files of a directory in lexical order and
// records each one in schema_migrations.
type Migrator struct {
	pool   *pgxpool.Pool
	dir    string
	logger *slog.Logger
}

// NewMigrator returns a Migrator over the SQL files in dir.
func NewMigrator(pool *pgxpool.Pool, dir string, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{pool: pool, dir: dir, logger: logger}
}

// Status lists every migration file with its applied flag.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	files, err := MigrationFiles(m.dir)
	if err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, name := range files {
		_, ok := applied[name]
		statuses = append(statuses, MigrationStatus{Name: name, Applied: ok})
	}
	return statuses, nil
}

// Up applies every pending migration. Each file runs in its own serializable
// transaction, retried on serialization failures, and the names applied are returned.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, status := range statuses {
		if status.Applied {
			continue
		}

		contents, err := os.ReadFile(filepath.Join(m.dir, status.Name))
		if err != nil {
			return done, fmt.Errorf("read migration %s: %w", status.Name, err)
		}

		err = crdbpgx.ExecuteTx(ctx, m.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(contents)); err != nil {
				return fmt.Errorf("apply migration %s: %w", status.Name, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, status.Name); err != nil {
				return fmt.Errorf("record migration %s: %w", status.Name, err)
			}
			return nil
		})
		if err != nil {
			return done, err
		}

		m.logger.Info("applied migration", "name", status.Name)
		done = append(done, status.Name)
	}
	return done, nil
}

// ApplySeed executes a seed file outside the migration bookkeeping.
func (m *Migrator) ApplySeed(ctx context.Context, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", filepath.Base(path), err)
	}
	if _, err := m.pool.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply seed %s: %w", filepath.Base(path), err)
	}
	m.logger.Info("applied seed", "name", filepath.Base(path))
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]struct{}, error) {
	if _, err := m.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
                version TEXT PRIMARY KEY,
                applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}

	applied := make(map[string]struct{}, len(versions))
	for _, version := range versions {
		applied[version] = struct{}{}
	}
	return applied, nil
}

// MigrationFiles returns the .sql files of dir sorted by name.
func MigrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	return files, nil
}

// ResolveDir makes a relative directory absolute against the working directory.
func ResolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}

// SeedPath maps a seed name such as "dev" to its file under dir.
func SeedPath(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("seed name is required")
	}
	if !strings.HasSuffix(name, ".sql") {
		name = fmt.Sprintf("%s_seed.sql", name)
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("seed name %q must not contain a path", name)
	}
	return filepath.Join(dir, name), nil
}
