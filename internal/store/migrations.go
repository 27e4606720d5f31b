// Embedded-file schema migrations.
//
// Migration SQL files live under migrations/<driver>/ and are embedded at
// build time. Filenames follow NNNN_name.up.sql / NNNN_name.down.sql; only
// "up" migrations are applied here, always to the latest version. The
// current schema version is tracked in the schema_version table.
package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"embed"
)

//go:embed migrations/**/*.sql
var migrationsFS embed.FS

var reMigrationFilename = regexp.MustCompile(`^(?P<Version>\d{4})\_(?P<Name>[^.]+)\.(?P<Direction>(up|down))\.sql$`)

// SchemaMigration represents a single database migration
type SchemaMigration struct {
	Version int
	Name    string
	Up      bool
	SQL     string
}

func loadMigrations(driver string) ([]SchemaMigration, error) {
	dirPath := filepath.Join("migrations", driver)

	entries, err := migrationsFS.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	var migrations []SchemaMigration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		parts := reMigrationFilename.FindStringSubmatch(filename)
		if parts == nil {
			slog.Warn("Skipping invalid migration filename", "file", filename)
			continue
		}

		sqlBytes, err := migrationsFS.ReadFile(filepath.Join(dirPath, filename))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file: %w", err)
		}

		version, _ := strconv.Atoi(parts[reMigrationFilename.SubexpIndex("Version")])
		migrations = append(migrations, SchemaMigration{
			Version: version,
			Name:    parts[reMigrationFilename.SubexpIndex("Name")],
			Up:      parts[reMigrationFilename.SubexpIndex("Direction")] == "up",
			SQL:     string(sqlBytes),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func (s *SQLStore) schemaVersion() (int, error) {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, err
	}

	var version int
	err := s.db.Get(&version, `SELECT version FROM schema_version LIMIT 1`)
	if err != nil {
		// Fresh database: zero state.
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return version, nil
}

// runMigrations brings the schema up to the latest embedded version.
func (s *SQLStore) runMigrations(driver string) error {
	logger := slog.With("component", "migrations", "driver", driver)

	current, err := s.schemaVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	migrations, err := loadMigrations(driver)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		if !m.Up || m.Version <= current {
			continue
		}

		logger.Info("Applying migration", "version", m.Version, "name", m.Name)

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %04d_%s failed: %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, m.Version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		current = m.Version
		applied++
	}

	if applied > 0 {
		logger.Info("Migrations applied", "count", applied, "version", current)
	}
	return nil
}
