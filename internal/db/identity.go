package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/classync/classync/internal/models"
)

// LookupIdentity returns the external email mapped to an LMS user, or ""
// when no explicit mapping exists.
func (db *DB) LookupIdentity(source, userID string) (string, error) {
	var email string
	err := db.conn.QueryRow(
		`SELECT external_email FROM identity_map WHERE lms_source = ? AND lms_user_id = ?`,
		source, userID,
	).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup identity %s/%s: %w", source, userID, err)
	}
	return email, nil
}

// UpsertIdentity creates or replaces an identity mapping. Returns true when
// a new row was created, false when an existing one was updated.
func (db *DB) UpsertIdentity(m *models.IdentityMapping) (bool, error) {
	var existing string
	err := db.conn.QueryRow(
		`SELECT external_email FROM identity_map WHERE lms_source = ? AND lms_user_id = ?`,
		m.LMSSource, m.LMSUserID,
	).Scan(&existing)
	created := err == sql.ErrNoRows
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("check identity %s/%s: %w", m.LMSSource, m.LMSUserID, err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO identity_map (lms_source, lms_user_id, external_email, full_name, import_batch_id, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(lms_source, lms_user_id) DO UPDATE SET
		   external_email = excluded.external_email,
		   full_name = excluded.full_name,
		   import_batch_id = excluded.import_batch_id,
		   imported_at = excluded.imported_at`,
		m.LMSSource, m.LMSUserID, m.ExternalEmail, m.FullName, m.ImportBatchID, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("upsert identity %s/%s: %w", m.LMSSource, m.LMSUserID, err)
	}
	return created, nil
}

// IdentityCount returns the number of identity mappings per LMS source.
func (db *DB) IdentityCount() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT lms_source, COUNT(*) FROM identity_map GROUP BY lms_source`)
	if err != nil {
		return nil, fmt.Errorf("identity count: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan identity count: %w", err)
		}
		counts[source] = n
	}
	return counts, rows.Err()
}
