package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/classync/classync/internal/models"
)

// ProcessAutoUnenroll computes roster entries eligible for inactivity
// removal and, in live mode, executes the removals. The candidate
// computation is identical in dry-run and live mode; only the side effect
// differs. Returns nil when the policy is disabled.
func (e *Engine) ProcessAutoUnenroll(ctx context.Context) ([]models.UnenrollCandidate, error) {
	if !e.policy.AutoUnenroll {
		return nil, nil
	}

	entries, err := e.db.ActiveRosterEntries()
	if err != nil {
		return nil, fmt.Errorf("load active roster: %w", err)
	}

	now := e.now()
	var candidates []models.UnenrollCandidate
	for _, entry := range entries {
		if entry.LMSUserEmail == "" {
			continue
		}
		// Protected accounts never become candidates.
		if e.policy.IsProtected(entry.LMSUserEmail) {
			continue
		}
		daysInactive := int(now.Sub(entry.LastActivityAt).Hours() / 24)
		if daysInactive < e.policy.InactiveDays {
			continue
		}
		candidates = append(candidates, models.UnenrollCandidate{
			Email:             entry.LMSUserEmail,
			LMSSource:         entry.LMSSource,
			LMSCourseID:       entry.LMSCourseID,
			LMSUserID:         entry.LMSUserID,
			ClassroomCourseID: entry.ClassroomCourseID,
			DaysInactive:      daysInactive,
			DryRun:            e.policy.DryRun,
		})
	}

	if e.policy.DryRun {
		for _, c := range candidates {
			slog.Info("unenroll candidate (dry run)",
				"email", c.Email, "course", c.LMSCourseID, "days_inactive", c.DaysInactive)
		}
		return candidates, nil
	}

	for _, c := range candidates {
		if err := e.executeUnenroll(ctx, c); err != nil {
			// One bad removal must not abort the pass.
			slog.Warn("auto-unenroll failed", "email", c.Email, "course", c.LMSCourseID, "err", err)
		}
	}

	return candidates, nil
}

// executeUnenroll runs the same remove branch as a roster.upsert remove,
// including the protection re-check.
func (e *Engine) executeUnenroll(ctx context.Context, c models.UnenrollCandidate) error {
	if e.policy.IsProtected(c.Email) {
		return fmt.Errorf("%w: %s", ErrProtectedAccount, c.Email)
	}

	if err := e.classroom.DeleteStudent(ctx, c.ClassroomCourseID, c.Email); err != nil {
		return fmt.Errorf("remove enrollment %s: %w", c.Email, err)
	}

	if err := e.db.SetRosterStatus(c.LMSSource, c.LMSCourseID, c.LMSUserID, models.EnrollmentRemoved); err != nil {
		return err
	}

	slog.Info("auto-unenrolled", "email", c.Email, "course", c.ClassroomCourseID, "days_inactive", c.DaysInactive)
	return nil
}
