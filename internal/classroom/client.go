// Package classroom is a thin typed wrapper over the remote classroom
// platform's REST API. It performs no retries and no idempotency handling;
// both belong to the reconciliation engine and the queue's redelivery policy.
package classroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIError is the decoded remote error envelope.
type APIError struct {
	StatusCode int    `json:"code"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("classroom API %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("classroom API %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is the 404 class of remote error. The
// roster synchronizer uses this to fall back from a direct enrollment to
// an invitation when the account is not in the remote directory.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusNotFound
	}
	return false
}

// Client talks to the remote classroom API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a classroom client with a default request timeout.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateCourse creates a course on the remote platform.
func (c *Client) CreateCourse(ctx context.Context, req CourseRequest) (*Course, error) {
	var course Course
	if err := c.do(ctx, "POST", "/v1/courses", req, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// PatchCourse partially updates a course. updateMask names the fields to change.
func (c *Client) PatchCourse(ctx context.Context, courseID, updateMask string, req CourseRequest) (*Course, error) {
	path := fmt.Sprintf("/v1/courses/%s?updateMask=%s", url.PathEscape(courseID), url.QueryEscape(updateMask))
	var course Course
	if err := c.do(ctx, "PATCH", path, req, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

// CreateTopic creates a topic within a course.
func (c *Client) CreateTopic(ctx context.Context, courseID, name string) (*Topic, error) {
	path := fmt.Sprintf("/v1/courses/%s/topics", url.PathEscape(courseID))
	var topic Topic
	if err := c.do(ctx, "POST", path, map[string]string{"name": name}, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// PatchTopic renames an existing topic.
func (c *Client) PatchTopic(ctx context.Context, courseID, topicID, name string) (*Topic, error) {
	path := fmt.Sprintf("/v1/courses/%s/topics/%s?updateMask=name", url.PathEscape(courseID), url.PathEscape(topicID))
	var topic Topic
	if err := c.do(ctx, "PATCH", path, map[string]string{"name": name}, &topic); err != nil {
		return nil, err
	}
	return &topic, nil
}

// CreateCourseWork creates an assignment within a course.
func (c *Client) CreateCourseWork(ctx context.Context, courseID string, req CourseWorkRequest) (*CourseWork, error) {
	path := fmt.Sprintf("/v1/courses/%s/courseWork", url.PathEscape(courseID))
	var work CourseWork
	if err := c.do(ctx, "POST", path, req, &work); err != nil {
		return nil, err
	}
	return &work, nil
}

// PatchCourseWork partially updates an assignment.
func (c *Client) PatchCourseWork(ctx context.Context, courseID, workID, updateMask string, req CourseWorkRequest) (*CourseWork, error) {
	path := fmt.Sprintf("/v1/courses/%s/courseWork/%s?updateMask=%s",
		url.PathEscape(courseID), url.PathEscape(workID), url.QueryEscape(updateMask))
	var work CourseWork
	if err := c.do(ctx, "PATCH", path, req, &work); err != nil {
		return nil, err
	}
	return &work, nil
}

// CreateStudent enrolls a student by email. Fails with the 404 class when
// the account does not exist in the remote directory.
func (c *Client) CreateStudent(ctx context.Context, courseID, email string) (*Enrollment, error) {
	path := fmt.Sprintf("/v1/courses/%s/students", url.PathEscape(courseID))
	var enr Enrollment
	if err := c.do(ctx, "POST", path, map[string]string{"userId": email}, &enr); err != nil {
		return nil, err
	}
	return &enr, nil
}

// CreateTeacher enrolls a teacher by email.
func (c *Client) CreateTeacher(ctx context.Context, courseID, email string) (*Enrollment, error) {
	path := fmt.Sprintf("/v1/courses/%s/teachers", url.PathEscape(courseID))
	var enr Enrollment
	if err := c.do(ctx, "POST", path, map[string]string{"userId": email}, &enr); err != nil {
		return nil, err
	}
	return &enr, nil
}

// DeleteStudent removes a student enrollment by course and email.
func (c *Client) DeleteStudent(ctx context.Context, courseID, email string) error {
	path := fmt.Sprintf("/v1/courses/%s/students/%s", url.PathEscape(courseID), url.PathEscape(email))
	return c.do(ctx, "DELETE", path, nil, nil)
}

// CreateInvitation invites an account that is not yet in the remote directory.
func (c *Client) CreateInvitation(ctx context.Context, courseID, email, role string) (*Invitation, error) {
	body := map[string]string{"courseId": courseID, "userId": email, "role": role}
	var inv Invitation
	if err := c.do(ctx, "POST", "/v1/invitations", body, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// errorEnvelope is the remote platform's standard error body.
type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope errorEnvelope
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Status = envelope.Error.Status
			apiErr.Message = envelope.Error.Message
		} else {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
