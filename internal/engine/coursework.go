package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/classync/classync/internal/classroom"
)

const workUpdateMask = "title,description,maxPoints,dueDate,dueTime"

// syncCoursework upserts an assignment on the remote platform. The parent
// course must be mapped. The topic reference is soft: coursework without
// a mapped topic is created unassociated rather than dropped.
func (e *Engine) syncCoursework(ctx context.Context, source string, payload json.RawMessage) (string, error) {
	var p WorkPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}

	courseMapping, err := e.db.GetCourseMapping(source, p.CourseID)
	if err != nil {
		return "", err
	}
	if courseMapping == nil {
		return "", fmt.Errorf("%w: lms course %s (work %s)", ErrCourseNotMapped, p.CourseID, p.ID)
	}
	classroomCourseID := courseMapping.ClassroomCourseID

	var classroomTopicID string
	if p.TopicID != "" {
		topicMapping, err := e.db.GetTopicMapping(source, p.CourseID, p.TopicID)
		if err != nil {
			return "", err
		}
		if topicMapping != nil {
			classroomTopicID = topicMapping.ClassroomTopicID
		} else {
			slog.Info("topic not mapped, creating coursework without topic",
				"lms_topic", p.TopicID, "lms_work", p.ID)
		}
	}

	req := classroom.CourseWorkRequest{
		Title:       p.DisplayTitle(),
		Description: p.Description,
		WorkType:    "ASSIGNMENT",
		State:       "PUBLISHED",
		TopicID:     classroomTopicID,
		MaxPoints:   p.Points(),
	}
	if p.DueDate != "" {
		dueDate, err := parseDueDate(p.DueDate)
		if err != nil {
			return "", &PayloadError{EventType: "work.upsert", Err: err}
		}
		req.DueDate = dueDate
	}
	if p.DueTime != "" {
		dueTime, err := parseDueTime(p.DueTime)
		if err != nil {
			return "", &PayloadError{EventType: "work.upsert", Err: err}
		}
		req.DueTime = dueTime
	}

	mapping, err := e.db.GetWorkMapping(source, p.CourseID, p.ID)
	if err != nil {
		return "", err
	}

	var classroomWorkID string
	if mapping != nil {
		classroomWorkID = mapping.ClassroomWorkID
		if _, err := e.classroom.PatchCourseWork(ctx, classroomCourseID, classroomWorkID, workUpdateMask, req); err != nil {
			return "", fmt.Errorf("patch coursework %s: %w", classroomWorkID, err)
		}
		slog.Debug("updated coursework", "classroom_work", classroomWorkID, "lms_work", p.ID)
	} else {
		work, err := e.classroom.CreateCourseWork(ctx, classroomCourseID, req)
		if err != nil {
			return "", fmt.Errorf("create coursework %s: %w", p.ID, err)
		}
		classroomWorkID = work.ID
		slog.Info("created coursework", "classroom_work", classroomWorkID, "lms_work", p.ID)
	}

	if err := e.db.UpsertWorkMapping(source, p.CourseID, p.ID, classroomCourseID, classroomWorkID, payload); err != nil {
		return "", err
	}

	return classroomWorkID, nil
}
