package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/classync/classync/internal/classroom"
	"github.com/classync/classync/internal/models"
)

// RosterOutcomeKind is the closed set of results a roster sync can produce.
// Callers assert on outcomes instead of parsing logs.
type RosterOutcomeKind string

const (
	// RosterCreated means a direct enrollment was created on the remote side.
	RosterCreated RosterOutcomeKind = "created"
	// RosterInvited means the account was not in the remote directory and an
	// invitation was sent instead.
	RosterInvited RosterOutcomeKind = "invited"
	// RosterReactivated means a removed mapping was flipped back to active
	// without a remote call.
	RosterReactivated RosterOutcomeKind = "reactivated"
	// RosterRemoved means the remote enrollment was deleted.
	RosterRemoved RosterOutcomeKind = "removed"
	// RosterNoop means the event required no change (already active, or a
	// remove for an unmapped user).
	RosterNoop RosterOutcomeKind = "noop"
)

// RosterOutcome is the result of one roster.upsert sync.
type RosterOutcome struct {
	Kind     RosterOutcomeKind
	RemoteID string
	Email    string
}

// syncRoster reconciles one course membership. State machine per
// (source, course, user):
//
//	(none)  --add-->    active      (direct enroll, or invitation fallback)
//	active  --add-->    active      (no-op)
//	active  --remove--> removed     (protection-guarded remote delete)
//	removed --add-->    active      (local reactivation, no remote call)
func (e *Engine) syncRoster(ctx context.Context, source string, payload json.RawMessage) (*RosterOutcome, error) {
	var p RosterPayload
	if err := decodePayload(payload, &p); err != nil {
		return nil, err
	}

	// Identity first: nothing can proceed without a target account.
	email, err := e.resolver.Resolve(source, p.UserID, p.UserEmail)
	if err != nil {
		return nil, err
	}

	courseMapping, err := e.db.GetCourseMapping(source, p.CourseID)
	if err != nil {
		return nil, err
	}
	if courseMapping == nil {
		return nil, fmt.Errorf("%w: lms course %s (user %s)", ErrCourseNotMapped, p.CourseID, p.UserID)
	}
	classroomCourseID := courseMapping.ClassroomCourseID

	mapping, err := e.db.GetRosterMapping(source, p.CourseID, p.UserID)
	if err != nil {
		return nil, err
	}

	if p.IsRemove() {
		return e.removeRosterEntry(ctx, source, &p, email, classroomCourseID, mapping)
	}
	return e.addRosterEntry(ctx, source, &p, email, classroomCourseID, mapping, payload)
}

func (e *Engine) addRosterEntry(ctx context.Context, source string, p *RosterPayload, email, classroomCourseID string, mapping *models.RosterMapping, payload json.RawMessage) (*RosterOutcome, error) {
	if mapping != nil {
		switch mapping.EnrollmentStatus {
		case models.EnrollmentActive:
			// Idempotent no-op; refresh activity so the unenroll pass sees it.
			slog.Info("already enrolled", "email", email, "course", classroomCourseID)
			if err := e.db.UpsertRosterMapping(refreshMapping(mapping, p, email, payload, models.EnrollmentActive)); err != nil {
				return nil, err
			}
			return &RosterOutcome{Kind: RosterNoop, RemoteID: mapping.ClassroomEnrollmentID, Email: email}, nil

		case models.EnrollmentRemoved:
			// Reactivation is a local status flip; no remote re-invite is
			// needed when the API allows direct create on next drift.
			slog.Info("reactivating enrollment", "email", email, "course", classroomCourseID)
			if err := e.db.UpsertRosterMapping(refreshMapping(mapping, p, email, payload, models.EnrollmentActive)); err != nil {
				return nil, err
			}
			return &RosterOutcome{Kind: RosterReactivated, RemoteID: mapping.ClassroomEnrollmentID, Email: email}, nil
		}
	}

	// Fresh enrollment: direct create, falling back to an invitation when
	// the account is not in the remote directory.
	kind := RosterCreated
	var remoteID string
	if p.IsTeacher() {
		enr, err := e.classroom.CreateTeacher(ctx, classroomCourseID, email)
		if err == nil {
			remoteID = enr.UserID
		} else if classroom.IsNotFound(err) {
			kind = RosterInvited
			inv, invErr := e.classroom.CreateInvitation(ctx, classroomCourseID, email, classroom.RoleTeacher)
			if invErr != nil {
				return nil, fmt.Errorf("invite teacher %s: %w", email, invErr)
			}
			remoteID = inv.ID
		} else {
			return nil, fmt.Errorf("enroll teacher %s: %w", email, err)
		}
	} else {
		enr, err := e.classroom.CreateStudent(ctx, classroomCourseID, email)
		if err == nil {
			remoteID = enr.UserID
		} else if classroom.IsNotFound(err) {
			kind = RosterInvited
			inv, invErr := e.classroom.CreateInvitation(ctx, classroomCourseID, email, classroom.RoleStudent)
			if invErr != nil {
				return nil, fmt.Errorf("invite student %s: %w", email, invErr)
			}
			remoteID = inv.ID
		} else {
			return nil, fmt.Errorf("enroll student %s: %w", email, err)
		}
	}

	role := "student"
	if p.IsTeacher() {
		role = "teacher"
	}
	newMapping := &models.RosterMapping{
		LMSSource:             source,
		LMSCourseID:           p.CourseID,
		LMSUserID:             p.UserID,
		LMSUserEmail:          email,
		LMSUserRole:           role,
		ClassroomCourseID:     classroomCourseID,
		ClassroomUserID:       email,
		ClassroomEnrollmentID: remoteID,
		EnrollmentStatus:      models.EnrollmentActive,
		LMSData:               payload,
	}
	if err := e.db.UpsertRosterMapping(newMapping); err != nil {
		return nil, err
	}

	if kind == RosterInvited {
		slog.Info("invited user", "email", email, "course", classroomCourseID, "invitation", remoteID)
	} else {
		slog.Info("enrolled user", "email", email, "course", classroomCourseID)
	}
	return &RosterOutcome{Kind: kind, RemoteID: remoteID, Email: email}, nil
}

func (e *Engine) removeRosterEntry(ctx context.Context, source string, p *RosterPayload, email, classroomCourseID string, mapping *models.RosterMapping) (*RosterOutcome, error) {
	if mapping == nil || mapping.EnrollmentStatus == models.EnrollmentRemoved {
		slog.Info("remove for unenrolled user, nothing to do", "email", email, "course", classroomCourseID)
		return &RosterOutcome{Kind: RosterNoop, RemoteID: "removed", Email: email}, nil
	}

	// Protection must never be silently bypassed: a protected account
	// fails the task and leaves the mapping untouched.
	if e.policy.IsProtected(email) {
		return nil, fmt.Errorf("%w: %s", ErrProtectedAccount, email)
	}

	if err := e.classroom.DeleteStudent(ctx, classroomCourseID, email); err != nil {
		return nil, fmt.Errorf("remove enrollment %s: %w", email, err)
	}

	if err := e.db.SetRosterStatus(source, p.CourseID, p.UserID, models.EnrollmentRemoved); err != nil {
		return nil, err
	}

	slog.Info("removed enrollment", "email", email, "course", classroomCourseID)
	return &RosterOutcome{Kind: RosterRemoved, RemoteID: "removed", Email: email}, nil
}

// refreshMapping carries an existing mapping forward with the latest
// payload, email, and the given status.
func refreshMapping(m *models.RosterMapping, p *RosterPayload, email string, payload json.RawMessage, status models.EnrollmentStatus) *models.RosterMapping {
	out := *m
	out.LMSUserEmail = email
	if p.Role != "" {
		out.LMSUserRole = p.Role
	}
	out.EnrollmentStatus = status
	out.LMSData = payload
	return &out
}
