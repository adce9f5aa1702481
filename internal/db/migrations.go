package db

import (
	"database/sql"
	"fmt"
)

// Migration is a single schema change applied in version order.
type Migration struct {
	Version int
	SQL     string
}

// Migrations lists all schema changes since version 1. Version 1 is the
// base schema; Initialize applies it wholesale and stamps the current
// version, so migrations only run for databases created by older builds.
var Migrations = []Migration{
	{
		// last_activity_at feeds the inactivity-based unenroll pass. SQLite
		// rejects non-constant defaults in ADD COLUMN, so backfill from
		// last_synced_at in a second statement.
		Version: 2,
		SQL: `ALTER TABLE roster_map ADD COLUMN last_activity_at DATETIME;
UPDATE roster_map SET last_activity_at = last_synced_at WHERE last_activity_at IS NULL;`,
	},
}

// GetSchemaVersion returns the current schema version from the database
func (db *DB) GetSchemaVersion() (int, error) {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		// Table might not exist yet
		return 0, nil
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v, nil
}

// SetSchemaVersion sets the schema version in the database
func (db *DB) SetSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// columnExists checks whether a column exists on a table
func (db *DB) columnExists(table, column string) (bool, error) {
	rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}

	return false, rows.Err()
}

// RunMigrations runs any pending database migrations
func (db *DB) RunMigrations() error {
	currentVersion, err := db.GetSchemaVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	if currentVersion >= SchemaVersion {
		return nil
	}

	for _, m := range Migrations {
		if m.Version <= currentVersion {
			continue
		}
		if m.Version == 2 {
			// Older builds may already carry the column from a manual fix
			exists, err := db.columnExists("roster_map", "last_activity_at")
			if err != nil {
				return fmt.Errorf("check column last_activity_at: %w", err)
			}
			if exists {
				if err := db.SetSchemaVersion(m.Version); err != nil {
					return fmt.Errorf("set version %d: %w", m.Version, err)
				}
				continue
			}
		}
		if _, err := db.conn.Exec(m.SQL); err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
		if err := db.SetSchemaVersion(m.Version); err != nil {
			return fmt.Errorf("set version %d: %w", m.Version, err)
		}
	}

	return nil
}
