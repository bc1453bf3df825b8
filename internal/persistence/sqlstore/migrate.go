package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	ErrInvalidMigrationFile = errors.New("invalid migration file")
	ErrDuplicateVersion     = errors.New("duplicate migration version")
	ErrChecksumMismatch     = errors.New("applied migration checksum mismatch")
)

// Migration is one embedded schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
	Checksum    string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version       int
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)\.sql$`)

// Migrations returns the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	return scanMigrations(migrationFiles, "migrations")
}

func scanMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		matches := migrationFilePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			return nil, fmt.Errorf("%w: %s does not match {version}_{description}.sql", ErrInvalidMigrationFile, entry.Name())
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMigrationFile, entry.Name())
		}
		if existing, ok := seen[version]; ok {
			return nil, fmt.Errorf("%w: %d in %s and %s", ErrDuplicateVersion, version, existing, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, dir+"/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, Migration{
			Version:     version,
			Description: strings.ReplaceAll(matches[2], "_", " "),
			SQL:         string(content),
			Checksum:    hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// Migrate applies every pending embedded migration, each in its own
// transaction. Already applied migrations must keep their checksum.
func (s *Store) Migrate(ctx context.Context) ([]Migration, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	return s.migrate(ctx, migrations)
}

func (s *Store) migrate(ctx context.Context, migrations []Migration) ([]Migration, error) {
	if _, err := s.exec(ctx, s.db, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL,
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]string, len(applied))
	for _, a := range applied {
		done[a.Version] = a.Checksum
	}

	var ran []Migration
	for _, m := range migrations {
		if checksum, ok := done[m.Version]; ok {
			if checksum != m.Checksum {
				return ran, fmt.Errorf("%w: version %d", ErrChecksumMismatch, m.Version)
			}
			continue
		}

		statements := splitStatements(m.SQL)
		if len(statements) == 0 {
			return ran, fmt.Errorf("%w: version %d has no statements", ErrInvalidMigrationFile, m.Version)
		}

		started := time.Now()
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for i, stmt := range statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d statement %d: %w", m.Version, i+1, err)
				}
			}
			_, err := s.exec(ctx, tx,
				`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
				m.Version, encodeTime(time.Now()), m.Checksum, time.Since(started).Milliseconds())
			return err
		})
		if err != nil {
			return ran, err
		}
		ran = append(ran, m)
	}
	return ran, nil
}

// AppliedMigrations lists schema_migrations in version order.
func (s *Store) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := s.query(ctx, s.db, `SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var (
			a         AppliedMigration
			appliedAt string
			elapsedMS int64
		)
		if err := rows.Scan(&a.Version, &appliedAt, &a.Checksum, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		if a.AppliedAt, err = decodeTime(appliedAt); err != nil {
			return nil, err
		}
		a.ExecutionTime = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

// splitStatements separates statements on semicolons and drops comment lines.
func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n"))
		}
	}
	return out
}
