package identity

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/models"
	"github.com/google/uuid"
)

// ImportRecord is one parsed CSV row before validation.
type ImportRecord struct {
	LMSSource     string
	LMSUserID     string
	ExternalEmail string
	FullName      string
}

// InvalidRecord pairs a rejected row with the reason it was rejected.
type InvalidRecord struct {
	Line   int
	Record ImportRecord
	Reason string
}

// ImportResult summarises an identity import batch.
type ImportResult struct {
	BatchID  string
	Imported int
	Updated  int
	Invalid  []InvalidRecord
}

// ParseCSV reads identity records from CSV input. Expected columns:
// lms_source, lms_user_id, external_email, full_name (optional). A header
// row is skipped when the third column is not an email.
func ParseCSV(r io.Reader) ([]ImportRecord, []InvalidRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		records []ImportRecord
		invalid []InvalidRecord
		line    int
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		line++

		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		rec := ImportRecord{}
		if len(row) > 0 {
			rec.LMSSource = strings.TrimSpace(row[0])
		}
		if len(row) > 1 {
			rec.LMSUserID = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			rec.ExternalEmail = strings.TrimSpace(row[2])
		}
		if len(row) > 3 {
			rec.FullName = strings.TrimSpace(row[3])
		}

		// Header detection: first row whose email column is not an email
		if line == 1 && !ValidEmail(rec.ExternalEmail) {
			continue
		}

		if reason := validate(rec); reason != "" {
			invalid = append(invalid, InvalidRecord{Line: line, Record: rec, Reason: reason})
			continue
		}
		records = append(records, rec)
	}

	return records, invalid, nil
}

func validate(rec ImportRecord) string {
	if rec.LMSSource == "" {
		return "missing lms_source"
	}
	if rec.LMSUserID == "" {
		return "missing lms_user_id"
	}
	if !ValidEmail(rec.ExternalEmail) {
		return "invalid external_email format"
	}
	return ""
}

// Import parses CSV input and upserts the valid records under a fresh
// batch id. Invalid rows are reported, not fatal.
func Import(database *db.DB, r io.Reader) (*ImportResult, error) {
	records, invalid, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		BatchID: uuid.NewString(),
		Invalid: invalid,
	}

	for _, rec := range records {
		created, err := database.UpsertIdentity(&models.IdentityMapping{
			LMSSource:     rec.LMSSource,
			LMSUserID:     rec.LMSUserID,
			ExternalEmail: rec.ExternalEmail,
			FullName:      rec.FullName,
			ImportBatchID: result.BatchID,
		})
		if err != nil {
			return nil, fmt.Errorf("import %s/%s: %w", rec.LMSSource, rec.LMSUserID, err)
		}
		if created {
			result.Imported++
		} else {
			result.Updated++
		}
	}

	return result, nil
}
