package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/classync/classync/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Per-event-type payload schemas. Validation runs at the dispatch boundary
// so synchronizers can assume required fields are present.
var payloadSchemas = map[models.EventType]string{
	models.EventCourseUpsert: `{
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"name": {"type": "string"},
			"title": {"type": "string"}
		},
		"anyOf": [
			{"required": ["name"]},
			{"required": ["title"]}
		]
	}`,
	models.EventTopicUpsert: `{
		"type": "object",
		"required": ["id", "course_id"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"course_id": {"type": "string", "minLength": 1},
			"name": {"type": "string"},
			"title": {"type": "string"}
		},
		"anyOf": [
			{"required": ["name"]},
			{"required": ["title"]}
		]
	}`,
	models.EventWorkUpsert: `{
		"type": "object",
		"required": ["id", "course_id"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"course_id": {"type": "string", "minLength": 1},
			"topic_id": {"type": "string"},
			"title": {"type": "string"},
			"name": {"type": "string"},
			"due_date": {"type": "string"},
			"due_time": {"type": "string"}
		},
		"anyOf": [
			{"required": ["title"]},
			{"required": ["name"]}
		]
	}`,
	models.EventRosterUpsert: `{
		"type": "object",
		"required": ["course_id", "user_id"],
		"properties": {
			"course_id": {"type": "string", "minLength": 1},
			"user_id": {"type": "string", "minLength": 1},
			"user_email": {"type": "string"},
			"role": {"type": "string"},
			"action": {"type": "string", "enum": ["add", "remove"]}
		}
	}`,
}

// validator holds the compiled payload schemas.
type validator struct {
	schemas map[models.EventType]*jsonschema.Schema
}

// newValidator compiles all payload schemas. Compilation failure is a
// programming error, so it is returned rather than deferred to dispatch.
func newValidator() (*validator, error) {
	compiler := jsonschema.NewCompiler()
	compiled := make(map[models.EventType]*jsonschema.Schema, len(payloadSchemas))

	for eventType, schemaText := range payloadSchemas {
		url := string(eventType) + ".schema.json"
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaText))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", eventType, err)
		}
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", eventType, err)
		}
		sch, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", eventType, err)
		}
		compiled[eventType] = sch
	}

	return &validator{schemas: compiled}, nil
}

// Validate checks a raw payload against the schema for its event type.
func (v *validator) Validate(eventType models.EventType, payload json.RawMessage) error {
	sch, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return &PayloadError{EventType: string(eventType), Err: err}
	}
	if err := sch.Validate(inst); err != nil {
		return &PayloadError{EventType: string(eventType), Err: err}
	}
	return nil
}
