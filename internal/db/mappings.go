package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/classync/classync/internal/models"
)

// GetCourseMapping returns the mapping for an LMS course, or nil when the
// course has never been synced.
func (db *DB) GetCourseMapping(source, courseID string) (*models.CourseMapping, error) {
	var (
		m        models.CourseMapping
		lmsData  string
		syncedAt string
	)
	err := db.conn.QueryRow(
		`SELECT lms_source, lms_course_id, classroom_course_id, lms_data, last_synced_at
		 FROM course_map WHERE lms_source = ? AND lms_course_id = ?`,
		source, courseID,
	).Scan(&m.LMSSource, &m.LMSCourseID, &m.ClassroomCourseID, &lmsData, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get course mapping %s/%s: %w", source, courseID, err)
	}
	m.LMSData = json.RawMessage(lmsData)
	if t, err := parseTimestamp(syncedAt); err == nil {
		m.LastSyncedAt = t
	}
	return &m, nil
}

// UpsertCourseMapping creates or refreshes the row for (source, courseID).
// The natural key is unique; mappings are never deleted by the engine.
func (db *DB) UpsertCourseMapping(source, courseID, classroomCourseID string, lmsData json.RawMessage) error {
	_, err := db.conn.Exec(
		`INSERT INTO course_map (lms_source, lms_course_id, classroom_course_id, lms_data, last_synced_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(lms_source, lms_course_id) DO UPDATE SET
		   classroom_course_id = excluded.classroom_course_id,
		   lms_data = excluded.lms_data,
		   last_synced_at = excluded.last_synced_at`,
		source, courseID, classroomCourseID, string(lmsData), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert course mapping %s/%s: %w", source, courseID, err)
	}
	return nil
}

// GetTopicMapping returns the mapping for an LMS topic, or nil when absent.
func (db *DB) GetTopicMapping(source, courseID, topicID string) (*models.TopicMapping, error) {
	var (
		m        models.TopicMapping
		lmsData  string
		syncedAt string
	)
	err := db.conn.QueryRow(
		`SELECT lms_source, lms_course_id, lms_topic_id, classroom_course_id, classroom_topic_id, lms_data, last_synced_at
		 FROM topic_map WHERE lms_source = ? AND lms_course_id = ? AND lms_topic_id = ?`,
		source, courseID, topicID,
	).Scan(&m.LMSSource, &m.LMSCourseID, &m.LMSTopicID, &m.ClassroomCourseID, &m.ClassroomTopicID, &lmsData, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get topic mapping %s/%s/%s: %w", source, courseID, topicID, err)
	}
	m.LMSData = json.RawMessage(lmsData)
	if t, err := parseTimestamp(syncedAt); err == nil {
		m.LastSyncedAt = t
	}
	return &m, nil
}

// UpsertTopicMapping creates or refreshes the row for (source, courseID, topicID).
func (db *DB) UpsertTopicMapping(source, courseID, topicID, classroomCourseID, classroomTopicID string, lmsData json.RawMessage) error {
	_, err := db.conn.Exec(
		`INSERT INTO topic_map (lms_source, lms_course_id, lms_topic_id, classroom_course_id, classroom_topic_id, lms_data, last_synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(lms_source, lms_course_id, lms_topic_id) DO UPDATE SET
		   classroom_course_id = excluded.classroom_course_id,
		   classroom_topic_id = excluded.classroom_topic_id,
		   lms_data = excluded.lms_data,
		   last_synced_at = excluded.last_synced_at`,
		source, courseID, topicID, classroomCourseID, classroomTopicID, string(lmsData), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert topic mapping %s/%s/%s: %w", source, courseID, topicID, err)
	}
	return nil
}

// GetWorkMapping returns the mapping for an LMS assignment, or nil when absent.
func (db *DB) GetWorkMapping(source, courseID, workID string) (*models.WorkMapping, error) {
	var (
		m        models.WorkMapping
		lmsData  string
		syncedAt string
	)
	err := db.conn.QueryRow(
		`SELECT lms_source, lms_course_id, lms_work_id, classroom_course_id, classroom_work_id, lms_data, last_synced_at
		 FROM work_map WHERE lms_source = ? AND lms_course_id = ? AND lms_work_id = ?`,
		source, courseID, workID,
	).Scan(&m.LMSSource, &m.LMSCourseID, &m.LMSWorkID, &m.ClassroomCourseID, &m.ClassroomWorkID, &lmsData, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work mapping %s/%s/%s: %w", source, courseID, workID, err)
	}
	m.LMSData = json.RawMessage(lmsData)
	if t, err := parseTimestamp(syncedAt); err == nil {
		m.LastSyncedAt = t
	}
	return &m, nil
}

// UpsertWorkMapping creates or refreshes the row for (source, courseID, workID).
func (db *DB) UpsertWorkMapping(source, courseID, workID, classroomCourseID, classroomWorkID string, lmsData json.RawMessage) error {
	_, err := db.conn.Exec(
		`INSERT INTO work_map (lms_source, lms_course_id, lms_work_id, classroom_course_id, classroom_work_id, lms_data, last_synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(lms_source, lms_course_id, lms_work_id) DO UPDATE SET
		   classroom_course_id = excluded.classroom_course_id,
		   classroom_work_id = excluded.classroom_work_id,
		   lms_data = excluded.lms_data,
		   last_synced_at = excluded.last_synced_at`,
		source, courseID, workID, classroomCourseID, classroomWorkID, string(lmsData), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert work mapping %s/%s/%s: %w", source, courseID, workID, err)
	}
	return nil
}

// GetRosterMapping returns the mapping for an LMS course membership, or nil when absent.
func (db *DB) GetRosterMapping(source, courseID, userID string) (*models.RosterMapping, error) {
	var (
		m          models.RosterMapping
		status     string
		lmsData    string
		activityAt string
		syncedAt   string
	)
	err := db.conn.QueryRow(
		`SELECT lms_source, lms_course_id, lms_user_id, lms_user_email, lms_user_role,
		        classroom_course_id, classroom_user_id, classroom_enrollment_id,
		        enrollment_status, lms_data, last_activity_at, last_synced_at
		 FROM roster_map WHERE lms_source = ? AND lms_course_id = ? AND lms_user_id = ?`,
		source, courseID, userID,
	).Scan(&m.LMSSource, &m.LMSCourseID, &m.LMSUserID, &m.LMSUserEmail, &m.LMSUserRole,
		&m.ClassroomCourseID, &m.ClassroomUserID, &m.ClassroomEnrollmentID,
		&status, &lmsData, &activityAt, &syncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get roster mapping %s/%s/%s: %w", source, courseID, userID, err)
	}
	m.EnrollmentStatus = models.EnrollmentStatus(status)
	m.LMSData = json.RawMessage(lmsData)
	if t, err := parseTimestamp(activityAt); err == nil {
		m.LastActivityAt = t
	}
	if t, err := parseTimestamp(syncedAt); err == nil {
		m.LastSyncedAt = t
	}
	return &m, nil
}

// UpsertRosterMapping creates or refreshes the full roster row. The upsert
// also refreshes last_activity_at: any roster event counts as activity.
func (db *DB) UpsertRosterMapping(m *models.RosterMapping) error {
	now := formatTime(time.Now())
	_, err := db.conn.Exec(
		`INSERT INTO roster_map (lms_source, lms_course_id, lms_user_id, lms_user_email, lms_user_role,
		                         classroom_course_id, classroom_user_id, classroom_enrollment_id,
		                         enrollment_status, lms_data, last_activity_at, last_synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(lms_source, lms_course_id, lms_user_id) DO UPDATE SET
		   lms_user_email = excluded.lms_user_email,
		   lms_user_role = excluded.lms_user_role,
		   classroom_course_id = excluded.classroom_course_id,
		   classroom_user_id = excluded.classroom_user_id,
		   classroom_enrollment_id = excluded.classroom_enrollment_id,
		   enrollment_status = excluded.enrollment_status,
		   lms_data = excluded.lms_data,
		   last_activity_at = excluded.last_activity_at,
		   last_synced_at = excluded.last_synced_at`,
		m.LMSSource, m.LMSCourseID, m.LMSUserID, m.LMSUserEmail, m.LMSUserRole,
		m.ClassroomCourseID, m.ClassroomUserID, m.ClassroomEnrollmentID,
		string(m.EnrollmentStatus), string(m.LMSData), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert roster mapping %s/%s/%s: %w", m.LMSSource, m.LMSCourseID, m.LMSUserID, err)
	}
	return nil
}

// SetRosterStatus updates only the enrollment status for an existing row.
func (db *DB) SetRosterStatus(source, courseID, userID string, status models.EnrollmentStatus) error {
	res, err := db.conn.Exec(
		`UPDATE roster_map SET enrollment_status = ?, last_synced_at = ?
		 WHERE lms_source = ? AND lms_course_id = ? AND lms_user_id = ?`,
		string(status), formatTime(time.Now()), source, courseID, userID,
	)
	if err != nil {
		return fmt.Errorf("set roster status %s/%s/%s: %w", source, courseID, userID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("roster mapping not found: %s/%s/%s", source, courseID, userID)
	}
	return nil
}

// ActiveRosterEntries returns all roster rows with status active, for the
// unenroll policy pass.
func (db *DB) ActiveRosterEntries() ([]models.RosterMapping, error) {
	rows, err := db.conn.Query(
		`SELECT lms_source, lms_course_id, lms_user_id, lms_user_email, lms_user_role,
		        classroom_course_id, classroom_user_id, classroom_enrollment_id,
		        enrollment_status, lms_data, last_activity_at, last_synced_at
		 FROM roster_map WHERE enrollment_status = 'active'
		 ORDER BY lms_source, lms_course_id, lms_user_id`)
	if err != nil {
		return nil, fmt.Errorf("active roster entries: %w", err)
	}
	defer rows.Close()

	var entries []models.RosterMapping
	for rows.Next() {
		var (
			m          models.RosterMapping
			status     string
			lmsData    string
			activityAt string
			syncedAt   string
		)
		if err := rows.Scan(&m.LMSSource, &m.LMSCourseID, &m.LMSUserID, &m.LMSUserEmail, &m.LMSUserRole,
			&m.ClassroomCourseID, &m.ClassroomUserID, &m.ClassroomEnrollmentID,
			&status, &lmsData, &activityAt, &syncedAt); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		m.EnrollmentStatus = models.EnrollmentStatus(status)
		m.LMSData = json.RawMessage(lmsData)
		if t, err := parseTimestamp(activityAt); err == nil {
			m.LastActivityAt = t
		}
		if t, err := parseTimestamp(syncedAt); err == nil {
			m.LastSyncedAt = t
		}
		entries = append(entries, m)
	}
	return entries, rows.Err()
}

// TouchRosterActivity sets last_activity_at for one roster row to a given
// time, independent of the upsert path's automatic refresh.
func (db *DB) TouchRosterActivity(source, courseID, userID string, at time.Time) error {
	_, err := db.conn.Exec(
		`UPDATE roster_map SET last_activity_at = ?
		 WHERE lms_source = ? AND lms_course_id = ? AND lms_user_id = ?`,
		formatTime(at), source, courseID, userID,
	)
	if err != nil {
		return fmt.Errorf("touch roster activity %s/%s/%s: %w", source, courseID, userID, err)
	}
	return nil
}

// MappingCounts returns row counts per mapping table, for status output.
func (db *DB) MappingCounts() (courses, topics, works, rosters int, err error) {
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"course_map", &courses},
		{"topic_map", &topics},
		{"work_map", &works},
		{"roster_map", &rosters},
	} {
		if err = db.conn.QueryRow("SELECT COUNT(*) FROM " + q.table).Scan(q.dst); err != nil {
			err = fmt.Errorf("count %s: %w", q.table, err)
			return
		}
	}
	return
}
