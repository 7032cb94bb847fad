// ABOUTME: Minimal structural JSON Schema check used for tools/call params
// ABOUTME: validation (§4.6.2.c) — object/array/string/number/boolean/required only.
package dispatch

import (
	"encoding/json"
)

// schemaShape is the handful of JSON Schema keywords the core actually
// needs to enforce at dispatch time: top-level type, required fields, and
// each property's declared type. Full schema validation (oneOf, pattern,
// nested $ref, ...) is left to the tool itself, consistent with §1's "the
// core does not interpret tool arguments beyond JSON-schema validation" —
// read narrowly, as shape-checking, not full draft-2020-12 conformance.
type schemaShape struct {
	Type       string                     `json:"type"`
	Required   []string                   `json:"required"`
	Properties map[string]schemaProperty `json:"properties"`
}

type schemaProperty struct {
	Type string `json:"type"`
}

// Violation describes one schema mismatch, surfaced in the Invalid Params
// error's data.violations per §4.8 as a {path, message} pair.
type Violation struct {
	Field  string `json:"path"`
	Reason string `json:"message"`
}

// ValidateArguments checks arguments against schema's shape, returning a
// list of violations (empty if valid). A schema the validator doesn't
// recognize (empty or malformed) is treated as "anything goes."
func ValidateArguments(schema json.RawMessage, arguments json.RawMessage) []Violation {
	if len(schema) == 0 {
		return nil
	}

	var shape schemaShape
	if err := json.Unmarshal(schema, &shape); err != nil {
		return nil
	}

	var data map[string]any
	raw := arguments
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		if shape.Type == "object" {
			return []Violation{{Field: "", Reason: "expected a JSON object"}}
		}
		return nil
	}

	var violations []Violation
	for _, field := range shape.Required {
		if _, ok := data[field]; !ok {
			violations = append(violations, Violation{Field: field, Reason: "required field missing"})
		}
	}

	for field, prop := range shape.Properties {
		val, present := data[field]
		if !present || prop.Type == "" {
			continue
		}
		if !matchesType(val, prop.Type) {
			violations = append(violations, Violation{Field: field, Reason: "expected type " + prop.Type})
		}
	}

	return violations
}

func matchesType(val any, want string) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		_, ok := val.(float64)
		return ok
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	case "array":
		_, ok := val.([]any)
		return ok
	default:
		return true
	}
}
