package engine

import (
	"context"
	"testing"
	"time"

	"github.com/classync/classync/internal/config"
	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/models"
)

// seedActiveEntry inserts an active roster row whose last activity was
// daysAgo days before the pinned clock.
func seedActiveEntry(t *testing.T, database *db.DB, userID, email string, now time.Time, daysAgo int) {
	t.Helper()
	if err := database.UpsertRosterMapping(&models.RosterMapping{
		LMSSource:             "lms",
		LMSCourseID:           "c1",
		LMSUserID:             userID,
		LMSUserEmail:          email,
		LMSUserRole:           "student",
		ClassroomCourseID:     "cr-1",
		ClassroomUserID:       email,
		ClassroomEnrollmentID: email,
		EnrollmentStatus:      models.EnrollmentActive,
	}); err != nil {
		t.Fatalf("seed roster: %v", err)
	}
	at := now.AddDate(0, 0, -daysAgo)
	if err := database.TouchRosterActivity("lms", "c1", userID, at); err != nil {
		t.Fatalf("touch activity: %v", err)
	}
}

func TestAutoUnenrollDisabled(t *testing.T) {
	eng, database, fake := setupEngine(t, &config.UnenrollPolicy{DryRun: false, InactiveDays: 30})
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return now })

	seedActiveEntry(t, database, "u1", "idle@school.edu", now, 90)

	candidates, err := eng.ProcessAutoUnenroll(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if candidates != nil {
		t.Errorf("disabled policy produced candidates: %v", candidates)
	}
	if len(fake.deleted) != 0 {
		t.Errorf("disabled policy made remote calls: %v", fake.deleted)
	}
}

func TestAutoUnenrollDryRun(t *testing.T) {
	policy := &config.UnenrollPolicy{
		AutoUnenroll: true,
		DryRun:       true,
		InactiveDays: 30,
		Protected:    []string{"teacher@school.edu"},
	}
	eng, database, fake := setupEngine(t, policy)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return now })

	seedActiveEntry(t, database, "u1", "idle@school.edu", now, 45)
	seedActiveEntry(t, database, "u2", "busy@school.edu", now, 3)
	seedActiveEntry(t, database, "u3", "teacher@school.edu", now, 200)

	candidates, err := eng.ProcessAutoUnenroll(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates: got %d, want 1", len(candidates))
	}
	c := candidates[0]
	if c.Email != "idle@school.edu" {
		t.Errorf("candidate: got %s, want idle@school.edu", c.Email)
	}
	if c.DaysInactive != 45 {
		t.Errorf("days inactive: got %d, want 45", c.DaysInactive)
	}
	if !c.DryRun {
		t.Error("candidate should be flagged dry-run")
	}

	// Dry run must not touch the remote side or local state
	if len(fake.deleted) != 0 {
		t.Errorf("dry run deleted: %v", fake.deleted)
	}
	entries, err := database.ActiveRosterEntries()
	if err != nil {
		t.Fatalf("active entries: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("active after dry run: got %d, want 3", len(entries))
	}
}

func TestAutoUnenrollLive(t *testing.T) {
	policy := &config.UnenrollPolicy{
		AutoUnenroll: true,
		DryRun:       false,
		InactiveDays: 30,
		Protected:    []string{"teacher@school.edu"},
	}
	eng, database, fake := setupEngine(t, policy)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return now })

	seedActiveEntry(t, database, "u1", "idle@school.edu", now, 45)
	seedActiveEntry(t, database, "u2", "busy@school.edu", now, 3)
	seedActiveEntry(t, database, "u3", "teacher@school.edu", now, 200)

	candidates, err := eng.ProcessAutoUnenroll(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates: got %d, want 1", len(candidates))
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "idle@school.edu" {
		t.Errorf("deleted: got %v, want [idle@school.edu]", fake.deleted)
	}

	m, err := database.GetRosterMapping("lms", "c1", "u1")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if m.EnrollmentStatus != models.EnrollmentRemoved {
		t.Errorf("status: got %s, want removed", m.EnrollmentStatus)
	}

	// Protected and recently active entries stay enrolled
	for _, user := range []string{"u2", "u3"} {
		m, err := database.GetRosterMapping("lms", "c1", user)
		if err != nil {
			t.Fatalf("get mapping %s: %v", user, err)
		}
		if m.EnrollmentStatus != models.EnrollmentActive {
			t.Errorf("%s status: got %s, want active", user, m.EnrollmentStatus)
		}
	}
}

func TestAutoUnenrollRemoteFailureDoesNotAbortPass(t *testing.T) {
	policy := &config.UnenrollPolicy{AutoUnenroll: true, DryRun: false, InactiveDays: 30}
	eng, database, fake := setupEngine(t, policy)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return now })
	fake.deleteErr = notFoundErr("idle@school.edu")

	seedActiveEntry(t, database, "u1", "idle@school.edu", now, 45)

	candidates, err := eng.ProcessAutoUnenroll(context.Background())
	if err != nil {
		t.Fatalf("pass should survive a failed removal: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates: got %d, want 1", len(candidates))
	}

	// Removal did not land, so the entry stays active
	m, err := database.GetRosterMapping("lms", "c1", "u1")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if m.EnrollmentStatus != models.EnrollmentActive {
		t.Errorf("status: got %s, want active", m.EnrollmentStatus)
	}
}

func TestRunRecordsUnenrollCandidates(t *testing.T) {
	policy := &config.UnenrollPolicy{AutoUnenroll: true, DryRun: true, InactiveDays: 30}
	eng, database, _ := setupEngine(t, policy)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	eng.SetClock(func() time.Time { return now })

	seedActiveEntry(t, database, "u1", "idle@school.edu", now, 60)

	stats, err := eng.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Candidates != 1 {
		t.Errorf("candidates: got %d, want 1", stats.Candidates)
	}

	finished, _, _, err := database.LastRun()
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if finished == nil {
		t.Error("run was not recorded")
	}
}
