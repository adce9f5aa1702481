package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/classync/classync/internal/classroom"
)

const courseUpdateMask = "name,section,descriptionHeading,description"

// syncCourse upserts a course on the remote platform: patch when a mapping
// exists, create and map otherwise. Returns the remote course id.
func (e *Engine) syncCourse(ctx context.Context, source string, payload json.RawMessage) (string, error) {
	var p CoursePayload
	if err := decodePayload(payload, &p); err != nil {
		return "", err
	}

	mapping, err := e.db.GetCourseMapping(source, p.ID)
	if err != nil {
		return "", err
	}

	req := classroom.CourseRequest{
		Name:               p.DisplayName(),
		Section:            p.Section(),
		DescriptionHeading: p.DescriptionHeading,
		Description:        p.Description,
	}

	var classroomCourseID string
	if mapping != nil {
		classroomCourseID = mapping.ClassroomCourseID
		if _, err := e.classroom.PatchCourse(ctx, classroomCourseID, courseUpdateMask, req); err != nil {
			return "", fmt.Errorf("patch course %s: %w", classroomCourseID, err)
		}
		slog.Debug("updated course", "classroom_course", classroomCourseID, "lms_course", p.ID)
	} else {
		req.OwnerID = "me"
		req.CourseState = "ACTIVE"
		if req.DescriptionHeading == "" {
			req.DescriptionHeading = "Course Description"
		}
		course, err := e.classroom.CreateCourse(ctx, req)
		if err != nil {
			return "", fmt.Errorf("create course %s: %w", p.ID, err)
		}
		classroomCourseID = course.ID
		slog.Info("created course", "classroom_course", classroomCourseID, "lms_course", p.ID)
	}

	if err := e.db.UpsertCourseMapping(source, p.ID, classroomCourseID, payload); err != nil {
		return "", err
	}

	return classroomCourseID, nil
}
