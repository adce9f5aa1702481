package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/classync/classync/internal/models"
	"github.com/google/uuid"
)

// sqliteTimeFormat is fixed-width so stored timestamps sort lexicographically.
const sqliteTimeFormat = "2006-01-02 15:04:05.000000000"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

// parseTimestamp tries common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		sqliteTimeFormat,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

func parseNullTimestamp(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := parseTimestamp(s.String)
	if err != nil {
		return nil
	}
	return &t
}

// EnqueueTask appends a pending task to the queue and returns its id.
func (db *DB) EnqueueTask(eventType models.EventType, eventSource string, payload json.RawMessage) (string, error) {
	if !eventType.Valid() {
		return "", fmt.Errorf("unknown event type: %s", eventType)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	id := uuid.NewString()
	_, err := db.conn.Exec(
		`INSERT INTO sync_tasks (id, event_type, event_source, payload, status, created_at)
		 VALUES (?, ?, ?, ?, 'pending', ?)`,
		id, string(eventType), eventSource, string(payload), formatTime(time.Now()),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return id, nil
}

// ClaimNextTask atomically claims the oldest pending task, flipping it to
// processing. Returns (nil, nil) when the queue is empty. The claim runs
// in a transaction so only one loop instance can receive a given task.
func (db *DB) ClaimNextTask() (*models.SyncTask, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	var (
		task      models.SyncTask
		eventType string
		payload   string
		createdAt string
	)
	err = tx.QueryRow(
		`SELECT id, event_type, event_source, payload, attempts, created_at
		 FROM sync_tasks WHERE status = 'pending'
		 ORDER BY created_at ASC, rowid ASC LIMIT 1`,
	).Scan(&task.ID, &eventType, &task.EventSource, &payload, &task.Attempts, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next task: %w", err)
	}

	now := time.Now()
	res, err := tx.Exec(
		`UPDATE sync_tasks SET status = 'processing', claimed_at = ?
		 WHERE id = ? AND status = 'pending'`,
		formatTime(now), task.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("claim task %s: %w", task.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		// Lost the race to another instance
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	task.EventType = models.EventType(eventType)
	task.Payload = json.RawMessage(payload)
	task.Status = models.TaskProcessing
	if t, err := parseTimestamp(createdAt); err == nil {
		task.CreatedAt = t
	}
	claimed := now.UTC()
	task.ClaimedAt = &claimed

	return &task, nil
}

// CompleteTask marks a task completed, recording the remote id and result metadata.
func (db *DB) CompleteTask(id, remoteID string, result map[string]any) error {
	resultJSON := "{}"
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = string(data)
	}

	_, err := db.conn.Exec(
		`UPDATE sync_tasks SET status = 'completed', remote_id = ?, result = ?, last_error = '', finished_at = ?
		 WHERE id = ?`,
		remoteID, resultJSON, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("complete task %s: %w", id, err)
	}
	return nil
}

// FailTask marks a task failed and increments its attempt count. Retry
// scheduling is an operator concern; failed tasks stay failed until requeued.
func (db *DB) FailTask(id, errMsg string, details map[string]any) error {
	detailsJSON := "{}"
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			slog.Warn("marshal error details", "task", id, "err", err)
		} else {
			detailsJSON = string(data)
		}
	}

	_, err := db.conn.Exec(
		`UPDATE sync_tasks SET status = 'failed', attempts = attempts + 1, last_error = ?, error_details = ?, finished_at = ?
		 WHERE id = ?`,
		errMsg, detailsJSON, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("fail task %s: %w", id, err)
	}
	return nil
}

// RetryFailedTasks requeues failed tasks below the attempts ceiling.
// Returns the number of tasks put back into pending.
func (db *DB) RetryFailedTasks(maxAttempts int) (int, error) {
	res, err := db.conn.Exec(
		`UPDATE sync_tasks SET status = 'pending', claimed_at = NULL, finished_at = NULL
		 WHERE status = 'failed' AND attempts < ?`,
		maxAttempts,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// QueueStats counts tasks per status.
func (db *DB) QueueStats() (models.QueueStats, error) {
	var stats models.QueueStats

	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM sync_tasks GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		switch models.TaskStatus(status) {
		case models.TaskPending:
			stats.Pending = count
		case models.TaskProcessing:
			stats.Processing = count
		case models.TaskCompleted:
			stats.Completed = count
		case models.TaskFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// RecentTasks returns the n most recently created tasks, newest first.
func (db *DB) RecentTasks(n int) ([]models.SyncTask, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, event_source, payload, attempts, status, remote_id, last_error, created_at, claimed_at, finished_at
		 FROM sync_tasks ORDER BY created_at DESC, rowid DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("recent tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.SyncTask
	for rows.Next() {
		var (
			task       models.SyncTask
			eventType  string
			payload    string
			status     string
			createdAt  string
			claimedAt  sql.NullString
			finishedAt sql.NullString
		)
		if err := rows.Scan(&task.ID, &eventType, &task.EventSource, &payload, &task.Attempts,
			&status, &task.RemoteID, &task.LastError, &createdAt, &claimedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task.EventType = models.EventType(eventType)
		task.Payload = json.RawMessage(payload)
		task.Status = models.TaskStatus(status)
		if t, err := parseTimestamp(createdAt); err == nil {
			task.CreatedAt = t
		}
		task.ClaimedAt = parseNullTimestamp(claimedAt)
		task.FinishedAt = parseNullTimestamp(finishedAt)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// GetTask returns a single task by id, or nil when absent.
func (db *DB) GetTask(id string) (*models.SyncTask, error) {
	var (
		task       models.SyncTask
		eventType  string
		payload    string
		status     string
		createdAt  string
		claimedAt  sql.NullString
		finishedAt sql.NullString
	)
	err := db.conn.QueryRow(
		`SELECT id, event_type, event_source, payload, attempts, status, remote_id, last_error, created_at, claimed_at, finished_at
		 FROM sync_tasks WHERE id = ?`, id,
	).Scan(&task.ID, &eventType, &task.EventSource, &payload, &task.Attempts,
		&status, &task.RemoteID, &task.LastError, &createdAt, &claimedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	task.EventType = models.EventType(eventType)
	task.Payload = json.RawMessage(payload)
	task.Status = models.TaskStatus(status)
	if t, err := parseTimestamp(createdAt); err == nil {
		task.CreatedAt = t
	}
	task.ClaimedAt = parseNullTimestamp(claimedAt)
	task.FinishedAt = parseNullTimestamp(finishedAt)
	return &task, nil
}

// RecordRun inserts a sync_runs row summarising one loop invocation.
func (db *DB) RecordRun(startedAt, finishedAt time.Time, claimed, completed, failed, candidates int) error {
	_, err := db.conn.Exec(
		`INSERT INTO sync_runs (started_at, finished_at, claimed, completed, failed, unenroll_candidates)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(startedAt), formatTime(finishedAt), claimed, completed, failed, candidates,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// LastRun returns the finish time and counts of the most recent invocation,
// or nil when the engine has never run.
func (db *DB) LastRun() (*time.Time, int, int, error) {
	var (
		finishedAt sql.NullString
		completed  int
		failed     int
	)
	err := db.conn.QueryRow(
		`SELECT finished_at, completed, failed FROM sync_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&finishedAt, &completed, &failed)
	if err == sql.ErrNoRows {
		return nil, 0, 0, nil
	}
	if err != nil {
		return nil, 0, 0, fmt.Errorf("last run: %w", err)
	}
	return parseNullTimestamp(finishedAt), completed, failed, nil
}
