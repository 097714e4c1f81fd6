// Package migrate brings the workspace database up to the current schema.
// Migration files are embedded under sql/ and applied in filename order
// inside one transaction, tracked through a single-row schema_version table.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/logging"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Migrate applies any schema migrations the database has not seen yet.
func Migrate(db *sql.DB) error {
	names, err := fs.Glob(schemaFS, "sql/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := schemaVersion(tx)
	if err != nil {
		return err
	}

	applied := 0
	for _, name := range names {
		version, err := versionOf(name)
		if err != nil {
			return err
		}
		if version <= current {
			continue
		}
		body, err := schemaFS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, version); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
		log := logging.Component("migrate")
		log.Debug().Str("file", name).Int("version", version).Msg("schema migration applied")
		current = version
		applied++
	}
	if applied > 0 {
		log := logging.Component("migrate")
		log.Debug().Int("applied", applied).Int("version", current).Msg("database schema updated")
	}
	return tx.Commit()
}

// schemaVersion reads the tracked version, creating the tracking row on a
// fresh database.
func schemaVersion(tx *sql.Tx) (int, error) {
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("schema_version table: %w", err)
	}
	var v int
	err := tx.QueryRow(`SELECT version FROM schema_version`).Scan(&v)
	if err == sql.ErrNoRows {
		_, err = tx.Exec(`INSERT INTO schema_version (version) VALUES (0)`)
		return 0, err
	}
	return v, err
}

// versionOf parses the numeric prefix of a migration filename.
func versionOf(name string) (int, error) {
	base := path.Base(name)
	var v int
	if _, err := fmt.Sscanf(base, "%d_", &v); err != nil {
		return 0, fmt.Errorf("migration filename %s lacks a numeric prefix: %w", base, err)
	}
	return v, nil
}
