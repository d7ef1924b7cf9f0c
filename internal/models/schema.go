package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/qri-io/jsonschema"
)

const rowSchemaJSON = `{
  "type": "object",
  "required": ["id", "user_id", "status", "created_at"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "user_id": {"type": "string", "minLength": 1},
    "user_name": {"type": "string"},
    "user_type": {"type": "string"},
    "status": {"type": "string", "enum": ["active", "resolved", "cancelled"]},
    "location": {"type": ["string", "null"]},
    "latitude": {"type": ["number", "null"]},
    "longitude": {"type": ["number", "null"]},
    "additional_info": {"type": ["object", "null"]},
    "created_at": {"type": "string"},
    "updated_at": {"type": "string"}
  }
}`

const wireEventSchemaJSON = `{
  "type": "object",
  "required": ["eventType"],
  "properties": {
    "eventType": {"type": "string", "enum": ["INSERT", "UPDATE", "DELETE"]},
    "new": {"anyOf": [{"type": "null"}, ` + rowSchemaJSON + `]},
    "old": {"anyOf": [{"type": "null"}, ` + rowSchemaJSON + `]},
    "origin": {"type": "string"}
  }
}`

var (
	wireSchemaOnce sync.Once
	wireSchema     *jsonschema.Schema
	wireSchemaErr  error
)

func wireEventSchema() (*jsonschema.Schema, error) {
	wireSchemaOnce.Do(func() {
		rs := &jsonschema.Schema{}
		if err := json.Unmarshal([]byte(wireEventSchemaJSON), rs); err != nil {
			wireSchemaErr = fmt.Errorf("compile wire event schema: %w", err)
			return
		}
		wireSchema = rs
	})
	return wireSchema, wireSchemaErr
}

// DecodeWireEvent validates b against the change-feed contract and converts it
// to a ChangeEvent with normalized alerts.
func DecodeWireEvent(ctx context.Context, b []byte) (ChangeEvent, error) {
	schema, err := wireEventSchema()
	if err != nil {
		return ChangeEvent{}, err
	}
	verrs, err := schema.ValidateBytes(ctx, b)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	if len(verrs) > 0 {
		var sb strings.Builder
		for _, v := range verrs {
			sb.WriteString(v.PropertyPath)
			sb.WriteString(": ")
			sb.WriteString(v.Message)
			sb.WriteString("; ")
		}
		return ChangeEvent{}, fmt.Errorf("%w: %s", ErrMalformedRow, sb.String())
	}

	var raw struct {
		Type   EventType      `json:"eventType"`
		New    map[string]any `json:"new"`
		Old    map[string]any `json:"old"`
		Origin string         `json:"origin"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	ev := ChangeEvent{Type: raw.Type, Origin: raw.Origin}
	if raw.New != nil {
		a, err := NormalizeRow(raw.New)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.New = &a
	}
	if raw.Old != nil {
		a, err := NormalizeRow(raw.Old)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.Old = &a
	}
	if ev.AlertID() == "" {
		return ChangeEvent{}, fmt.Errorf("%w: event without row", ErrMalformedRow)
	}
	return ev, nil
}
