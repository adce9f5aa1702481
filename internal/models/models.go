package models

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of LMS change a sync task carries.
type EventType string

const (
	EventCourseUpsert EventType = "course.upsert"
	EventTopicUpsert  EventType = "topic.upsert"
	EventWorkUpsert   EventType = "work.upsert"
	EventRosterUpsert EventType = "roster.upsert"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventCourseUpsert, EventTopicUpsert, EventWorkUpsert, EventRosterUpsert:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of a sync task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// SyncTask is one queued LMS change event awaiting reconciliation.
type SyncTask struct {
	ID          string          `json:"id"`
	EventType   EventType       `json:"event_type"`
	EventSource string          `json:"event_source"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	Status      TaskStatus      `json:"status"`
	RemoteID    string          `json:"remote_id,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// EnrollmentStatus tracks whether a roster mapping is live on the remote side.
type EnrollmentStatus string

const (
	EnrollmentActive  EnrollmentStatus = "active"
	EnrollmentRemoved EnrollmentStatus = "removed"
)

// CourseMapping associates an LMS course with its remote classroom course.
type CourseMapping struct {
	LMSSource         string          `json:"lms_source"`
	LMSCourseID       string          `json:"lms_course_id"`
	ClassroomCourseID string          `json:"classroom_course_id"`
	LMSData           json.RawMessage `json:"lms_data,omitempty"`
	LastSyncedAt      time.Time       `json:"last_synced_at"`
}

// TopicMapping associates an LMS topic with its remote classroom topic.
// A topic mapping requires a resolved course mapping before it can exist.
type TopicMapping struct {
	LMSSource         string          `json:"lms_source"`
	LMSCourseID       string          `json:"lms_course_id"`
	LMSTopicID        string          `json:"lms_topic_id"`
	ClassroomCourseID string          `json:"classroom_course_id"`
	ClassroomTopicID  string          `json:"classroom_topic_id"`
	LMSData           json.RawMessage `json:"lms_data,omitempty"`
	LastSyncedAt      time.Time       `json:"last_synced_at"`
}

// WorkMapping associates an LMS assignment with its remote coursework.
type WorkMapping struct {
	LMSSource         string          `json:"lms_source"`
	LMSCourseID       string          `json:"lms_course_id"`
	LMSWorkID         string          `json:"lms_work_id"`
	ClassroomCourseID string          `json:"classroom_course_id"`
	ClassroomWorkID   string          `json:"classroom_work_id"`
	LMSData           json.RawMessage `json:"lms_data,omitempty"`
	LastSyncedAt      time.Time       `json:"last_synced_at"`
}

// RosterMapping associates an LMS course membership with its remote enrollment.
type RosterMapping struct {
	LMSSource             string           `json:"lms_source"`
	LMSCourseID           string           `json:"lms_course_id"`
	LMSUserID             string           `json:"lms_user_id"`
	LMSUserEmail          string           `json:"lms_user_email"`
	LMSUserRole           string           `json:"lms_user_role"`
	ClassroomCourseID     string           `json:"classroom_course_id"`
	ClassroomUserID       string           `json:"classroom_user_id"`
	ClassroomEnrollmentID string           `json:"classroom_enrollment_id"`
	EnrollmentStatus      EnrollmentStatus `json:"enrollment_status"`
	LMSData               json.RawMessage  `json:"lms_data,omitempty"`
	LastActivityAt        time.Time        `json:"last_activity_at"`
	LastSyncedAt          time.Time        `json:"last_synced_at"`
}

// IdentityMapping maps an LMS user to an external account email.
type IdentityMapping struct {
	LMSSource     string    `json:"lms_source"`
	LMSUserID     string    `json:"lms_user_id"`
	ExternalEmail string    `json:"external_email"`
	FullName      string    `json:"full_name,omitempty"`
	ImportBatchID string    `json:"import_batch_id,omitempty"`
	ImportedAt    time.Time `json:"imported_at"`
}

// UnenrollCandidate is a roster entry eligible for inactivity removal.
// Candidates are derived by the policy pass, never persisted.
type UnenrollCandidate struct {
	Email             string `json:"email"`
	LMSSource         string `json:"source"`
	LMSCourseID       string `json:"course_id"`
	LMSUserID         string `json:"user_id"`
	ClassroomCourseID string `json:"classroom_course_id"`
	DaysInactive      int    `json:"days_inactive"`
	DryRun            bool   `json:"dry_run"`
}

// QueueStats summarises the task queue by status.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Total returns the number of tasks across all states.
func (s QueueStats) Total() int {
	return s.Pending + s.Processing + s.Completed + s.Failed
}

// Config is the engine configuration stored in .classync/config.json.
type Config struct {
	ClassroomBaseURL string `json:"classroom_base_url,omitempty"`
	ClassroomToken   string `json:"classroom_token,omitempty"`
	MaxTasks         int    `json:"max_tasks,omitempty"`
	LogLevel         string `json:"log_level,omitempty"`
}
