package identity

import (
	"database/sql"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/classync/classync/internal/db"
)

func setupDB(t *testing.T) *db.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplySchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return db.NewFromConn(conn)
}

func TestParseCSVSkipsHeader(t *testing.T) {
	input := `lms_source,lms_user_id,external_email,full_name
lms,u1,alex@school.edu,Alex Rivera
lms,u2,sam@school.edu,
`
	records, invalid, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(invalid) != 0 {
		t.Fatalf("invalid rows: %+v", invalid)
	}
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}
	if records[0].LMSUserID != "u1" || records[0].ExternalEmail != "alex@school.edu" {
		t.Errorf("first record: %+v", records[0])
	}
	if records[0].FullName != "Alex Rivera" {
		t.Errorf("full name: got %q", records[0].FullName)
	}
}

func TestParseCSVHeaderlessInput(t *testing.T) {
	input := "lms,u1,alex@school.edu,Alex Rivera\n"
	records, invalid, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(invalid) != 0 {
		t.Fatalf("invalid rows: %+v", invalid)
	}
	// First line carries a valid email, so it must not be eaten as a header
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}
}

func TestParseCSVReportsInvalidRows(t *testing.T) {
	input := `lms_source,lms_user_id,external_email
lms,u1,not-an-email
,u2,sam@school.edu
lms,,jo@school.edu
lms,u4,valid@school.edu
`
	records, invalid, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("valid records: got %d, want 1", len(records))
	}
	if len(invalid) != 3 {
		t.Fatalf("invalid records: got %d, want 3", len(invalid))
	}
	reasons := make(map[string]bool)
	for _, r := range invalid {
		reasons[r.Reason] = true
	}
	for _, want := range []string{"invalid external_email format", "missing lms_source", "missing lms_user_id"} {
		if !reasons[want] {
			t.Errorf("missing reason %q in %+v", want, invalid)
		}
	}
}

func TestImport(t *testing.T) {
	database := setupDB(t)

	input := `lms_source,lms_user_id,external_email,full_name
lms,u1,alex@school.edu,Alex Rivera
lms,u2,bad-email,
lms,u3,sam@school.edu,Sam Lee
`
	result, err := Import(database, strings.NewReader(input))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.BatchID == "" {
		t.Error("batch id not set")
	}
	if result.Imported != 2 || result.Updated != 0 {
		t.Errorf("counts: got %d imported %d updated, want 2/0", result.Imported, result.Updated)
	}
	if len(result.Invalid) != 1 {
		t.Errorf("invalid: got %d, want 1", len(result.Invalid))
	}

	// Re-importing the same users counts as updates under a new batch
	second, err := Import(database, strings.NewReader(input))
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.Imported != 0 || second.Updated != 2 {
		t.Errorf("second counts: got %d imported %d updated, want 0/2", second.Imported, second.Updated)
	}
	if second.BatchID == result.BatchID {
		t.Error("each import should get a fresh batch id")
	}
}

func TestResolve(t *testing.T) {
	database := setupDB(t)
	r := NewResolver(database)

	// No mapping, no fallback
	if _, err := r.Resolve("lms", "u1", ""); err == nil {
		t.Fatal("expected ErrUnresolved")
	}

	// No mapping, fallback supplied
	email, err := r.Resolve("lms", "u1", "fallback@school.edu")
	if err != nil {
		t.Fatalf("resolve with fallback: %v", err)
	}
	if email != "fallback@school.edu" {
		t.Errorf("email: got %s", email)
	}

	// Mapping wins over fallback
	input := "lms,u1,mapped@school.edu,\n"
	if _, err := Import(database, strings.NewReader(input)); err != nil {
		t.Fatalf("import: %v", err)
	}
	email, err = r.Resolve("lms", "u1", "fallback@school.edu")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if email != "mapped@school.edu" {
		t.Errorf("email: got %s, want mapped@school.edu", email)
	}
}

func TestValidEmail(t *testing.T) {
	for _, s := range []string{"a@b.co", "first.last@school.edu"} {
		if !ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = false", s)
		}
	}
	for _, s := range []string{"", "plain", "a b@c.d", "a@b"} {
		if ValidEmail(s) {
			t.Errorf("ValidEmail(%q) = true", s)
		}
	}
}
