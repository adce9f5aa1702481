package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// syncTopic upserts a topic on the remote platform. The parent course must
// already be mapped; topics cannot exist without a course.
func (e *Engine) syncTopic(ctx context.Context, source string, payload json.RawMessage) (string, error) {
	var p TopicPayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}

	courseMapping, err := e.db.GetCourseMapping(source, p.CourseID)
	if err != nil {
		return "", err
	}
	if courseMapping == nil {
		return "", fmt.Errorf("%w: lms course %s (topic %s)", ErrCourseNotMapped, p.CourseID, p.ID)
	}
	classroomCourseID := courseMapping.ClassroomCourseID

	mapping, err := e.db.GetTopicMapping(source, p.CourseID, p.ID)
	if err != nil {
		return "", err
	}

	var classroomTopicID string
	if mapping != nil {
		classroomTopicID = mapping.ClassroomTopicID
		if _, err := e.classroom.PatchTopic(ctx, classroomCourseID, classroomTopicID, p.DisplayName()); err != nil {
			return "", fmt.Errorf("patch topic %s: %w", classroomTopicID, err)
		}
		slog.Debug("updated topic", "classroom_topic", classroomTopicID, "lms_topic", p.ID)
	} else {
		topic, err := e.classroom.CreateTopic(ctx, classroomCourseID, p.DisplayName())
		if err != nil {
			return "", fmt.Errorf("create topic %s: %w", p.ID, err)
		}
		classroomTopicID = topic.TopicID
		slog.Info("created topic", "classroom_topic", classroomTopicID, "lms_topic", p.ID)
	}

	if err := e.db.UpsertTopicMapping(source, p.CourseID, p.ID, classroomCourseID, classroomTopicID, payload); err != nil {
		return "", err
	}

	return classroomTopicID, nil
}
