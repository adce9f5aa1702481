package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/classync/classync/internal/classroom"
)

// CoursePayload is the course.upsert event body. The LMS emits either
// name or title, and either code or course_code, depending on version.
type CoursePayload struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Title              string `json:"title"`
	Code               string `json:"code"`
	CourseCode         string `json:"course_code"`
	DescriptionHeading string `json:"description_heading"`
	Description        string `json:"description"`
}

// DisplayName returns the course name, preferring name over title.
func (p *CoursePayload) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Title
}

// Section returns the section code, preferring code over course_code.
func (p *CoursePayload) Section() string {
	if p.Code != "" {
		return p.Code
	}
	return p.CourseCode
}

// TopicPayload is the topic.upsert event body.
type TopicPayload struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
}

// DisplayName returns the topic name, preferring name over title.
func (p *TopicPayload) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Title
}

// WorkPayload is the work.upsert event body.
type WorkPayload struct {
	ID             string   `json:"id"`
	CourseID       string   `json:"course_id"`
	TopicID        string   `json:"topic_id"`
	Title          string   `json:"title"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	PointsPossible *float64 `json:"points_possible"`
	MaxPoints      *float64 `json:"max_points"`
	DueDate        string   `json:"due_date"`
	DueTime        string   `json:"due_time"`
}

// DisplayTitle returns the assignment title, preferring title over name.
func (p *WorkPayload) DisplayTitle() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Name
}

// Points returns the max points, defaulting to 100 when the LMS omits them.
func (p *WorkPayload) Points() float64 {
	if p.PointsPossible != nil {
		return *p.PointsPossible
	}
	if p.MaxPoints != nil {
		return *p.MaxPoints
	}
	return 100
}

// RosterPayload is the roster.upsert event body. Action defaults to add.
type RosterPayload struct {
	CourseID  string `json:"course_id"`
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	Role      string `json:"role"`
	Action    string `json:"action"`
}

// IsRemove reports whether the event asks for an explicit removal.
func (p *RosterPayload) IsRemove() bool {
	return p.Action == "remove"
}

// IsTeacher reports whether the membership role is teacher. Default is student.
func (p *RosterPayload) IsTeacher() bool {
	return strings.EqualFold(p.Role, "teacher")
}

// parseDueDate converts an LMS date string (YYYY-MM-DD, optionally with a
// time suffix) into the remote platform's date structure.
func parseDueDate(s string) (*classroom.Date, error) {
	for _, f := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(f, s); err == nil {
			return &classroom.Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}, nil
		}
	}
	return nil, fmt.Errorf("unrecognized due date: %q", s)
}

// parseDueTime converts an HH:MM string into the remote platform's
// time-of-day structure.
func parseDueTime(s string) (*classroom.TimeOfDay, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("unrecognized due time: %q", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return nil, fmt.Errorf("unrecognized due time: %q", s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return nil, fmt.Errorf("unrecognized due time: %q", s)
	}
	return &classroom.TimeOfDay{Hours: hours, Minutes: minutes}, nil
}
