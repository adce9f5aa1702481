package db

import (
	"testing"

	"github.com/classync/classync/internal/models"
)

func TestLookupIdentityMissing(t *testing.T) {
	db := setupDB(t)

	email, err := db.LookupIdentity("lms", "u-unknown")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if email != "" {
		t.Errorf("expected empty email for unmapped user, got %q", email)
	}
}

func TestUpsertIdentity(t *testing.T) {
	db := setupDB(t)

	created, err := db.UpsertIdentity(&models.IdentityMapping{
		LMSSource:     "lms",
		LMSUserID:     "u1",
		ExternalEmail: "alex@school.edu",
		FullName:      "Alex Rivera",
		ImportBatchID: "batch-1",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !created {
		t.Error("first upsert should report created")
	}

	created, err = db.UpsertIdentity(&models.IdentityMapping{
		LMSSource:     "lms",
		LMSUserID:     "u1",
		ExternalEmail: "alex.rivera@school.edu",
		ImportBatchID: "batch-2",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("second upsert should report updated")
	}

	email, err := db.LookupIdentity("lms", "u1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if email != "alex.rivera@school.edu" {
		t.Errorf("email: got %s, want alex.rivera@school.edu", email)
	}

	counts, err := db.IdentityCount()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["lms"] != 1 {
		t.Errorf("count: got %d, want 1", counts["lms"])
	}
}
