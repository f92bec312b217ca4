package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// Migration is one NNN_name.sql script.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies pending migrations and records them in schema_migrations.
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

// RunMigrationsFS applies every .sql file at the root of fsys whose version
// is not yet recorded. Each script runs in its own transaction.
func (m *Migrator) RunMigrationsFS(fsys fs.FS) error {
	if _, err := m.db.Exec(schemaMigrationsDDL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	pending, err := ParseMigrations(fsys)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	current, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	applied := 0
	for _, mig := range pending {
		if current[mig.Version] {
			continue
		}
		m.logger.Info("Applying migration", zap.Int("version", mig.Version), zap.String("name", mig.Name))
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
		}
		applied++
	}

	m.logger.Info("Schema up to date",
		zap.Int("available", len(pending)),
		zap.Int("applied", applied))
	return nil
}

// ParseMigrations reads and orders the migrations in fsys. Duplicate
// versions and names without a numeric prefix are errors.
func ParseMigrations(fsys fs.FS) ([]Migration, error) {
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int]string, len(files))
	out := make([]Migration, 0, len(files))
	for _, file := range files {
		version, name, err := parseMigrationName(file)
		if err != nil {
			return nil, err
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, file)
		}
		byVersion[version] = file

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationName splits "002_seed_states.sql" into 2 and "seed_states".
func parseMigrationName(file string) (int, string, error) {
	prefix, name, _ := strings.Cut(strings.TrimSuffix(file, ".sql"), "_")
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("invalid migration filename format: %s", file)
	}
	return version, name, nil
}

func (m *Migrator) appliedVersions() (map[int]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	versions := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions[v] = true
	}
	return versions, rows.Err()
}

func (m *Migrator) apply(mig Migration) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mig.SQL); err != nil {
			return fmt.Errorf("failed to execute migration SQL: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", mig.Version, mig.Name); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
}
