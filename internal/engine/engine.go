// Package engine reconciles queued LMS change events against the remote
// classroom platform: it claims tasks from the durable queue, dispatches to
// per-entity synchronizers, maintains the mapping tables, and runs the
// auto-unenroll policy pass after each batch.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/classync/classync/internal/classroom"
	"github.com/classync/classync/internal/config"
	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/models"
)

// Classroom is the remote platform surface the engine depends on. The
// concrete client lives in internal/classroom; tests substitute a fake.
type Classroom interface {
	CreateCourse(ctx context.Context, req classroom.CourseRequest) (*classroom.Course, error)
	PatchCourse(ctx context.Context, courseID, updateMask string, req classroom.CourseRequest) (*classroom.Course, error)
	CreateTopic(ctx context.Context, courseID, name string) (*classroom.Topic, error)
	PatchTopic(ctx context.Context, courseID, topicID, name string) (*classroom.Topic, error)
	CreateCourseWork(ctx context.Context, courseID string, req classroom.CourseWorkRequest) (*classroom.CourseWork, error)
	PatchCourseWork(ctx context.Context, courseID, workID, updateMask string, req classroom.CourseWorkRequest) (*classroom.CourseWork, error)
	CreateStudent(ctx context.Context, courseID, email string) (*classroom.Enrollment, error)
	CreateTeacher(ctx context.Context, courseID, email string) (*classroom.Enrollment, error)
	DeleteStudent(ctx context.Context, courseID, email string) error
	CreateInvitation(ctx context.Context, courseID, email, role string) (*classroom.Invitation, error)
}

// IdentityResolver maps LMS users to external account emails.
type IdentityResolver interface {
	Resolve(source, userID, fallbackEmail string) (string, error)
}

// Engine is the sync loop orchestrator. All collaborators are injected.
type Engine struct {
	db        *db.DB
	classroom Classroom
	resolver  IdentityResolver
	policy    *config.UnenrollPolicy
	validate  *validator

	// now is the clock; tests pin it
	now func() time.Time
}

// New creates an engine. A nil policy falls back to the fail-closed default
// (auto-unenroll disabled).
func New(database *db.DB, client Classroom, resolver IdentityResolver, policy *config.UnenrollPolicy) (*Engine, error) {
	v, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("compile payload schemas: %w", err)
	}
	if policy == nil {
		policy = &config.UnenrollPolicy{DryRun: true, InactiveDays: config.DefaultInactiveDays}
	}
	return &Engine{
		db:        database,
		classroom: client,
		resolver:  resolver,
		policy:    policy,
		validate:  v,
		now:       time.Now,
	}, nil
}

// SetClock pins the engine's clock. Tests use it to make inactivity
// computations deterministic.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// RunStats summarises one sync-loop invocation.
type RunStats struct {
	Claimed    int
	Completed  int
	Failed     int
	Candidates int
}

// Run claims and processes up to maxTasks queued tasks, strictly serially
// and in FIFO order, then runs the auto-unenroll pass once. Per-task
// failures are recorded on the queue and never abort the batch; only
// queue/infrastructure errors return non-nil.
func (e *Engine) Run(ctx context.Context, maxTasks int) (RunStats, error) {
	if maxTasks <= 0 {
		maxTasks = config.DefaultMaxTasks
	}

	var stats RunStats
	startedAt := e.now()

	for stats.Claimed < maxTasks {
		task, err := e.db.ClaimNextTask()
		if err != nil {
			return stats, fmt.Errorf("claim next task: %w", err)
		}
		if task == nil {
			break
		}
		stats.Claimed++

		remoteID, err := e.processTask(ctx, task)
		if err != nil {
			stats.Failed++
			slog.Warn("task failed", "task", task.ID, "event", task.EventType, "err", err)
			details := map[string]any{"class": classifyError(err)}
			if code := apiStatusCode(err); code != 0 {
				details["status_code"] = code
			}
			if failErr := e.db.FailTask(task.ID, err.Error(), details); failErr != nil {
				return stats, fmt.Errorf("record task failure: %w", failErr)
			}
			continue
		}

		stats.Completed++
		slog.Info("task completed", "task", task.ID, "event", task.EventType, "remote_id", remoteID)
		result := map[string]any{"status": "success", "timestamp": e.now().UTC().Format(time.RFC3339)}
		if err := e.db.CompleteTask(task.ID, remoteID, result); err != nil {
			return stats, fmt.Errorf("record task completion: %w", err)
		}
	}

	candidates, err := e.ProcessAutoUnenroll(ctx)
	if err != nil {
		return stats, fmt.Errorf("auto-unenroll pass: %w", err)
	}
	stats.Candidates = len(candidates)

	if err := e.db.RecordRun(startedAt, e.now(), stats.Claimed, stats.Completed, stats.Failed, stats.Candidates); err != nil {
		slog.Warn("record run", "err", err)
	}

	return stats, nil
}

// processTask validates the payload and dispatches to the synchronizer for
// the task's event type. Returns the remote id recorded as the task result.
func (e *Engine) processTask(ctx context.Context, task *models.SyncTask) (string, error) {
	slog.Debug("processing task", "task", task.ID, "event", task.EventType, "source", task.EventSource)

	if err := e.validate.Validate(task.EventType, task.Payload); err != nil {
		return "", err
	}

	switch task.EventType {
	case models.EventCourseUpsert:
		return e.syncCourse(ctx, task.EventSource, task.Payload)
	case models.EventTopicUpsert:
		return e.syncTopic(ctx, task.EventSource, task.Payload)
	case models.EventWorkUpsert:
		return e.syncCoursework(ctx, task.EventSource, task.Payload)
	case models.EventRosterUpsert:
		outcome, err := e.syncRoster(ctx, task.EventSource, task.Payload)
		if err != nil {
			return "", err
		}
		return outcome.RemoteID, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownEventType, task.EventType)
	}
}

func decodePayload(payload json.RawMessage, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
