package db

// SchemaVersion is the current database schema version
const SchemaVersion = 2

const schema = `
-- Durable sync task queue, strictly FIFO by creation time
CREATE TABLE IF NOT EXISTS sync_tasks (
    id TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    event_source TEXT NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}',
    attempts INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    remote_id TEXT DEFAULT '',
    result TEXT DEFAULT '',
    last_error TEXT DEFAULT '',
    error_details TEXT DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    claimed_at DATETIME,
    finished_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_sync_tasks_claim ON sync_tasks(status, created_at);

-- Course mapping: LMS course -> remote classroom course
CREATE TABLE IF NOT EXISTS course_map (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lms_source TEXT NOT NULL,
    lms_course_id TEXT NOT NULL,
    classroom_course_id TEXT NOT NULL,
    lms_data TEXT DEFAULT '',
    last_synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(lms_source, lms_course_id)
);

-- Topic mapping: requires a course mapping to exist first
CREATE TABLE IF NOT EXISTS topic_map (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lms_source TEXT NOT NULL,
    lms_course_id TEXT NOT NULL,
    lms_topic_id TEXT NOT NULL,
    classroom_course_id TEXT NOT NULL,
    classroom_topic_id TEXT NOT NULL,
    lms_data TEXT DEFAULT '',
    last_synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(lms_source, lms_course_id, lms_topic_id)
);

-- Coursework mapping
CREATE TABLE IF NOT EXISTS work_map (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lms_source TEXT NOT NULL,
    lms_course_id TEXT NOT NULL,
    lms_work_id TEXT NOT NULL,
    classroom_course_id TEXT NOT NULL,
    classroom_work_id TEXT NOT NULL,
    lms_data TEXT DEFAULT '',
    last_synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(lms_source, lms_course_id, lms_work_id)
);

-- Roster mapping with enrollment status state machine
CREATE TABLE IF NOT EXISTS roster_map (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lms_source TEXT NOT NULL,
    lms_course_id TEXT NOT NULL,
    lms_user_id TEXT NOT NULL,
    lms_user_email TEXT DEFAULT '',
    lms_user_role TEXT DEFAULT 'student',
    classroom_course_id TEXT NOT NULL,
    classroom_user_id TEXT DEFAULT '',
    classroom_enrollment_id TEXT DEFAULT '',
    enrollment_status TEXT NOT NULL DEFAULT 'active',
    lms_data TEXT DEFAULT '',
    last_activity_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_synced_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(lms_source, lms_course_id, lms_user_id)
);
CREATE INDEX IF NOT EXISTS idx_roster_map_status ON roster_map(enrollment_status);

-- Identity mapping: LMS user -> external account email
CREATE TABLE IF NOT EXISTS identity_map (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    lms_source TEXT NOT NULL,
    lms_user_id TEXT NOT NULL,
    external_email TEXT NOT NULL,
    full_name TEXT DEFAULT '',
    import_batch_id TEXT DEFAULT '',
    imported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(lms_source, lms_user_id)
);

-- One row per sync-loop invocation, for status/monitor
CREATE TABLE IF NOT EXISTS sync_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME,
    claimed INTEGER NOT NULL DEFAULT 0,
    completed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    unenroll_candidates INTEGER NOT NULL DEFAULT 0
);

-- Schema metadata
CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
