package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/classync/classync/internal/classroom"
	"github.com/classync/classync/internal/config"
	"github.com/classync/classync/internal/db"
	"github.com/classync/classync/internal/identity"
	"github.com/classync/classync/internal/models"
)

// fakeClassroom records calls and returns canned ids. Accounts listed in
// missing trigger the 404 path on direct enrollment.
type fakeClassroom struct {
	coursesCreated  int
	coursesPatched  int
	topicsCreated   int
	topicsPatched   int
	workCreated     int
	workPatched     int
	studentsCreated []string
	teachersCreated []string
	deleted         []string
	invitations     []string

	missing     map[string]bool
	deleteErr   error
	lastWorkReq classroom.CourseWorkRequest
}

func newFakeClassroom() *fakeClassroom {
	return &fakeClassroom{missing: make(map[string]bool)}
}

func notFoundErr(email string) error {
	return &classroom.APIError{StatusCode: http.StatusNotFound, Status: "NOT_FOUND", Message: "user " + email + " not found"}
}

func (f *fakeClassroom) CreateCourse(ctx context.Context, req classroom.CourseRequest) (*classroom.Course, error) {
	f.coursesCreated++
	return &classroom.Course{ID: fmt.Sprintf("cr-%d", f.coursesCreated), Name: req.Name}, nil
}

func (f *fakeClassroom) PatchCourse(ctx context.Context, courseID, updateMask string, req classroom.CourseRequest) (*classroom.Course, error) {
	f.coursesPatched++
	return &classroom.Course{ID: courseID, Name: req.Name}, nil
}

func (f *fakeClassroom) CreateTopic(ctx context.Context, courseID, name string) (*classroom.Topic, error) {
	f.topicsCreated++
	return &classroom.Topic{CourseID: courseID, TopicID: fmt.Sprintf("ct-%d", f.topicsCreated), Name: name}, nil
}

func (f *fakeClassroom) PatchTopic(ctx context.Context, courseID, topicID, name string) (*classroom.Topic, error) {
	f.topicsPatched++
	return &classroom.Topic{CourseID: courseID, TopicID: topicID, Name: name}, nil
}

func (f *fakeClassroom) CreateCourseWork(ctx context.Context, courseID string, req classroom.CourseWorkRequest) (*classroom.CourseWork, error) {
	f.workCreated++
	f.lastWorkReq = req
	return &classroom.CourseWork{CourseID: courseID, ID: fmt.Sprintf("cw-%d", f.workCreated)}, nil
}

func (f *fakeClassroom) PatchCourseWork(ctx context.Context, courseID, workID, updateMask string, req classroom.CourseWorkRequest) (*classroom.CourseWork, error) {
	f.workPatched++
	f.lastWorkReq = req
	return &classroom.CourseWork{CourseID: courseID, ID: workID}, nil
}

func (f *fakeClassroom) CreateStudent(ctx context.Context, courseID, email string) (*classroom.Enrollment, error) {
	if f.missing[email] {
		return nil, notFoundErr(email)
	}
	f.studentsCreated = append(f.studentsCreated, email)
	return &classroom.Enrollment{CourseID: courseID, UserID: email}, nil
}

func (f *fakeClassroom) CreateTeacher(ctx context.Context, courseID, email string) (*classroom.Enrollment, error) {
	if f.missing[email] {
		return nil, notFoundErr(email)
	}
	f.teachersCreated = append(f.teachersCreated, email)
	return &classroom.Enrollment{CourseID: courseID, UserID: email}, nil
}

func (f *fakeClassroom) DeleteStudent(ctx context.Context, courseID, email string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, email)
	return nil
}

func (f *fakeClassroom) CreateInvitation(ctx context.Context, courseID, email, role string) (*classroom.Invitation, error) {
	f.invitations = append(f.invitations, email)
	return &classroom.Invitation{ID: fmt.Sprintf("inv-%d", len(f.invitations)), CourseID: courseID, UserID: email, Role: role}, nil
}

func setupEngine(t *testing.T, policy *config.UnenrollPolicy) (*Engine, *db.DB, *fakeClassroom) {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplySchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	database := db.NewFromConn(conn)
	fake := newFakeClassroom()
	eng, err := New(database, fake, identity.NewResolver(database), policy)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, database, fake
}

func enqueue(t *testing.T, database *db.DB, eventType models.EventType, payload string) string {
	t.Helper()
	id, err := database.EnqueueTask(eventType, "lms", json.RawMessage(payload))
	if err != nil {
		t.Fatalf("enqueue %s: %v", eventType, err)
	}
	return id
}

func mapCourse(t *testing.T, database *db.DB, lmsCourse, classroomCourse string) {
	t.Helper()
	if err := database.UpsertCourseMapping("lms", lmsCourse, classroomCourse, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("map course: %v", err)
	}
}

func TestCourseUpsertIdempotent(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	enqueue(t, database, models.EventCourseUpsert, `{"id":"c1","name":"Algebra","code":"ALG-101"}`)
	enqueue(t, database, models.EventCourseUpsert, `{"id":"c1","name":"Algebra II","code":"ALG-101"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Claimed != 2 || stats.Completed != 2 || stats.Failed != 0 {
		t.Fatalf("stats: got %+v, want 2 claimed, 2 completed", stats)
	}

	if fake.coursesCreated != 1 {
		t.Errorf("courses created: got %d, want 1", fake.coursesCreated)
	}
	if fake.coursesPatched != 1 {
		t.Errorf("courses patched: got %d, want 1", fake.coursesPatched)
	}

	mapping, err := database.GetCourseMapping("lms", "c1")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if mapping == nil || mapping.ClassroomCourseID != "cr-1" {
		t.Fatalf("course mapping: got %+v", mapping)
	}

	courses, _, _, _, err := database.MappingCounts()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if courses != 1 {
		t.Errorf("course mapping rows: got %d, want 1", courses)
	}
}

func TestTopicBeforeCourseFailsTask(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	topicTask := enqueue(t, database, models.EventTopicUpsert, `{"id":"t1","course_id":"c-orphan","name":"Unit 1"}`)
	enqueue(t, database, models.EventCourseUpsert, `{"id":"c1","name":"Algebra"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// One failure must not abort the batch
	if stats.Completed != 1 || stats.Failed != 1 {
		t.Fatalf("stats: got %+v, want 1 completed, 1 failed", stats)
	}

	task, err := database.GetTask(topicTask)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.TaskFailed {
		t.Errorf("topic task status: got %s, want failed", task.Status)
	}
	if !strings.Contains(task.LastError, "course mapping not found") {
		t.Errorf("topic task error: got %q", task.LastError)
	}
	if fake.topicsCreated != 0 {
		t.Errorf("no topic should be created, got %d", fake.topicsCreated)
	}
}

func TestTopicUpsertPatchOnSecondEvent(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	enqueue(t, database, models.EventTopicUpsert, `{"id":"t1","course_id":"c1","name":"Unit 1"}`)
	enqueue(t, database, models.EventTopicUpsert, `{"id":"t1","course_id":"c1","name":"Unit 1 (rev)"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Completed != 2 {
		t.Fatalf("stats: got %+v, want 2 completed", stats)
	}
	if fake.topicsCreated != 1 || fake.topicsPatched != 1 {
		t.Errorf("topic calls: created %d patched %d, want 1/1", fake.topicsCreated, fake.topicsPatched)
	}
}

func TestCourseworkWithoutMappedTopic(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	enqueue(t, database, models.EventWorkUpsert,
		`{"id":"w1","course_id":"c1","topic_id":"t-unmapped","title":"Homework 1"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("stats: got %+v, want 1 completed", stats)
	}

	// Unmapped topic degrades to coursework without a topic, not a failure
	if fake.lastWorkReq.TopicID != "" {
		t.Errorf("topic id: got %q, want empty", fake.lastWorkReq.TopicID)
	}
	if fake.lastWorkReq.MaxPoints != 100 {
		t.Errorf("max points default: got %v, want 100", fake.lastWorkReq.MaxPoints)
	}
	if fake.lastWorkReq.WorkType != "ASSIGNMENT" || fake.lastWorkReq.State != "PUBLISHED" {
		t.Errorf("work defaults: got %s/%s", fake.lastWorkReq.WorkType, fake.lastWorkReq.State)
	}
}

func TestCourseworkDueDateAndTime(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	if err := database.UpsertTopicMapping("lms", "c1", "t1", "cr-1", "ct-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("map topic: %v", err)
	}
	enqueue(t, database, models.EventWorkUpsert,
		`{"id":"w1","course_id":"c1","topic_id":"t1","title":"Final","points_possible":50,"due_date":"2026-09-15","due_time":"23:59"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("stats: got %+v, want 1 completed", stats)
	}

	req := fake.lastWorkReq
	if req.TopicID != "ct-1" {
		t.Errorf("topic id: got %q, want ct-1", req.TopicID)
	}
	if req.MaxPoints != 50 {
		t.Errorf("max points: got %v, want 50", req.MaxPoints)
	}
	if req.DueDate == nil || req.DueDate.Year != 2026 || req.DueDate.Month != 9 || req.DueDate.Day != 15 {
		t.Errorf("due date: got %+v", req.DueDate)
	}
	if req.DueTime == nil || req.DueTime.Hours != 23 || req.DueTime.Minutes != 59 {
		t.Errorf("due time: got %+v", req.DueTime)
	}
}

func TestCourseworkBadDueDateFailsTask(t *testing.T) {
	eng, database, _ := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	id := enqueue(t, database, models.EventWorkUpsert,
		`{"id":"w1","course_id":"c1","title":"Final","due_date":"next tuesday"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("stats: got %+v, want 1 failed", stats)
	}

	task, err := database.GetTask(id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !strings.Contains(task.LastError, "due date") {
		t.Errorf("error: got %q", task.LastError)
	}
}

func TestInvalidPayloadFailsTask(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	// Course payload without a name or title is rejected before dispatch
	id := enqueue(t, database, models.EventCourseUpsert, `{"id":"c1"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("stats: got %+v, want 1 failed", stats)
	}
	if fake.coursesCreated != 0 {
		t.Errorf("no remote call expected, got %d creates", fake.coursesCreated)
	}

	task, err := database.GetTask(id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !strings.Contains(task.LastError, "invalid course.upsert payload") {
		t.Errorf("error: got %q", task.LastError)
	}
}

func TestRunRespectsMaxTasks(t *testing.T) {
	eng, database, _ := setupEngine(t, nil)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		enqueue(t, database, models.EventCourseUpsert, fmt.Sprintf(`{"id":"c%d","name":"Course %d"}`, i, i))
	}

	stats, err := eng.Run(ctx, 2)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Claimed != 2 {
		t.Fatalf("claimed: got %d, want 2", stats.Claimed)
	}

	queueStats, err := database.QueueStats()
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	if queueStats.Pending != 1 {
		t.Errorf("pending after bounded run: got %d, want 1", queueStats.Pending)
	}
}

func TestRosterEnrollWithFallbackEmail(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	enqueue(t, database, models.EventRosterUpsert,
		`{"course_id":"c1","user_id":"u1","user_email":"sam@school.edu"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("stats: got %+v, want 1 completed", stats)
	}
	if len(fake.studentsCreated) != 1 || fake.studentsCreated[0] != "sam@school.edu" {
		t.Errorf("students created: got %v", fake.studentsCreated)
	}

	mapping, err := database.GetRosterMapping("lms", "c1", "u1")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if mapping == nil || mapping.EnrollmentStatus != models.EnrollmentActive {
		t.Fatalf("roster mapping: got %+v", mapping)
	}
}

func TestRosterIdentityMappingWinsOverFallback(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	if _, err := database.UpsertIdentity(&models.IdentityMapping{
		LMSSource: "lms", LMSUserID: "u1", ExternalEmail: "mapped@school.edu",
	}); err != nil {
		t.Fatalf("upsert identity: %v", err)
	}

	outcome, err := eng.syncRoster(ctx, "lms",
		json.RawMessage(`{"course_id":"c1","user_id":"u1","user_email":"stale@school.edu"}`))
	if err != nil {
		t.Fatalf("sync roster: %v", err)
	}
	if outcome.Email != "mapped@school.edu" {
		t.Errorf("email: got %s, want mapped@school.edu", outcome.Email)
	}
	if len(fake.studentsCreated) != 1 || fake.studentsCreated[0] != "mapped@school.edu" {
		t.Errorf("students created: got %v", fake.studentsCreated)
	}
}

func TestRosterUnresolvedIdentityFailsTask(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	id := enqueue(t, database, models.EventRosterUpsert, `{"course_id":"c1","user_id":"u-ghost"}`)

	stats, err := eng.Run(ctx, 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("stats: got %+v, want 1 failed", stats)
	}
	if len(fake.studentsCreated) != 0 || len(fake.invitations) != 0 {
		t.Error("no remote call expected for unresolved identity")
	}

	task, err := database.GetTask(id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !strings.Contains(task.LastError, "identity unresolved") {
		t.Errorf("error: got %q", task.LastError)
	}
}

func TestRosterInvitationFallback(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	fake.missing["new@school.edu"] = true

	outcome, err := eng.syncRoster(ctx, "lms",
		json.RawMessage(`{"course_id":"c1","user_id":"u1","user_email":"new@school.edu"}`))
	if err != nil {
		t.Fatalf("sync roster: %v", err)
	}
	if outcome.Kind != RosterInvited {
		t.Errorf("outcome: got %s, want invited", outcome.Kind)
	}
	if len(fake.invitations) != 1 {
		t.Fatalf("invitations: got %v", fake.invitations)
	}

	mapping, err := database.GetRosterMapping("lms", "c1", "u1")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if mapping.EnrollmentStatus != models.EnrollmentActive {
		t.Errorf("status: got %s, want active", mapping.EnrollmentStatus)
	}
	if mapping.ClassroomEnrollmentID != outcome.RemoteID {
		t.Errorf("enrollment id: got %s, want %s", mapping.ClassroomEnrollmentID, outcome.RemoteID)
	}
}

func TestRosterTeacherRole(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	outcome, err := eng.syncRoster(ctx, "lms",
		json.RawMessage(`{"course_id":"c1","user_id":"u1","user_email":"prof@school.edu","role":"Teacher"}`))
	if err != nil {
		t.Fatalf("sync roster: %v", err)
	}
	if outcome.Kind != RosterCreated {
		t.Errorf("outcome: got %s, want created", outcome.Kind)
	}
	if len(fake.teachersCreated) != 1 || len(fake.studentsCreated) != 0 {
		t.Errorf("calls: teachers %v students %v", fake.teachersCreated, fake.studentsCreated)
	}
}

func TestRosterAddRemoveAddCycle(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	add := json.RawMessage(`{"course_id":"c1","user_id":"u1","user_email":"sam@school.edu"}`)
	remove := json.RawMessage(`{"course_id":"c1","user_id":"u1","user_email":"sam@school.edu","action":"remove"}`)

	outcome, err := eng.syncRoster(ctx, "lms", add)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if outcome.Kind != RosterCreated {
		t.Errorf("first add: got %s, want created", outcome.Kind)
	}

	// Second add is a no-op, not a duplicate enrollment
	outcome, err = eng.syncRoster(ctx, "lms", add)
	if err != nil {
		t.Fatalf("repeat add: %v", err)
	}
	if outcome.Kind != RosterNoop {
		t.Errorf("repeat add: got %s, want noop", outcome.Kind)
	}

	outcome, err = eng.syncRoster(ctx, "lms", remove)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if outcome.Kind != RosterRemoved {
		t.Errorf("remove: got %s, want removed", outcome.Kind)
	}
	if len(fake.deleted) != 1 {
		t.Errorf("deleted: got %v", fake.deleted)
	}

	// Re-add after removal reactivates locally without a remote call
	outcome, err = eng.syncRoster(ctx, "lms", add)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if outcome.Kind != RosterReactivated {
		t.Errorf("re-add: got %s, want reactivated", outcome.Kind)
	}
	if len(fake.studentsCreated) != 1 {
		t.Errorf("students created: got %v, want single direct enrollment", fake.studentsCreated)
	}
	if len(fake.invitations) != 0 {
		t.Errorf("invitations: got %v, want none", fake.invitations)
	}

	mapping, err := database.GetRosterMapping("lms", "c1", "u1")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if mapping.EnrollmentStatus != models.EnrollmentActive {
		t.Errorf("final status: got %s, want active", mapping.EnrollmentStatus)
	}
}

func TestRosterRemoveUnmappedIsNoop(t *testing.T) {
	eng, database, fake := setupEngine(t, nil)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	outcome, err := eng.syncRoster(ctx, "lms",
		json.RawMessage(`{"course_id":"c1","user_id":"u-never","user_email":"never@school.edu","action":"remove"}`))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if outcome.Kind != RosterNoop {
		t.Errorf("outcome: got %s, want noop", outcome.Kind)
	}
	if len(fake.deleted) != 0 {
		t.Errorf("deleted: got %v, want none", fake.deleted)
	}
}

func TestRosterRemoveProtectedAccountFails(t *testing.T) {
	policy := &config.UnenrollPolicy{
		DryRun:       true,
		InactiveDays: 30,
		Protected:    []string{"Principal@School.edu"},
	}
	eng, database, fake := setupEngine(t, policy)
	ctx := context.Background()

	mapCourse(t, database, "c1", "cr-1")
	add := json.RawMessage(`{"course_id":"c1","user_id":"u1","user_email":"principal@school.edu"}`)
	if _, err := eng.syncRoster(ctx, "lms", add); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Protection matching is case-insensitive
	_, err := eng.syncRoster(ctx, "lms",
		json.RawMessage(`{"course_id":"c1","user_id":"u1","user_email":"principal@school.edu","action":"remove"}`))
	if !errors.Is(err, ErrProtectedAccount) {
		t.Fatalf("expected ErrProtectedAccount, got %v", err)
	}
	if len(fake.deleted) != 0 {
		t.Errorf("deleted: got %v, want none", fake.deleted)
	}

	mapping, err := database.GetRosterMapping("lms", "c1", "u1")
	if err != nil {
		t.Fatalf("get mapping: %v", err)
	}
	if mapping.EnrollmentStatus != models.EnrollmentActive {
		t.Errorf("status after blocked remove: got %s, want active", mapping.EnrollmentStatus)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", ErrCourseNotMapped), "dependency_missing"},
		{fmt.Errorf("wrap: %w", ErrProtectedAccount), "protection_violation"},
		{fmt.Errorf("wrap: %w", ErrUnknownEventType), "unknown_event_type"},
		{fmt.Errorf("wrap: %w", identity.ErrUnresolved), "identity_unresolvable"},
		{&PayloadError{EventType: "course.upsert", Err: errors.New("bad")}, "invalid_payload"},
		{fmt.Errorf("wrap: %w", notFoundErr("x@school.edu")), "remote_api_error"},
		{errors.New("disk full"), "sync_error"},
	}
	for _, tc := range cases {
		if got := classifyError(tc.err); got != tc.want {
			t.Errorf("classifyError(%v): got %s, want %s", tc.err, got, tc.want)
		}
	}
}
