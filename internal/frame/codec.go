// ABOUTME: Decode/encode between wire bytes and Frame values, applying the
// ABOUTME: JSON-RPC 2.0 shape rules from §4.1.
package frame

import (
	"bytes"
	"encoding/json"
)

// rawMessage is the on-wire shape we decode into before shape validation,
// since a malformed jsonrpc/method/id still needs its own field values to
// build a useful error response (e.g. echoing a valid id).
type rawMessage struct {
	JSONRPC json.RawMessage `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  json.RawMessage `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Decode parses wire bytes into a Frame. On total parse failure (invalid
// JSON) it returns a ParseError with id=null, per §4.1. A shape-invalid
// object decodes successfully as a Frame containing a Message whose
// Validate() will report the problem — this lets the caller produce a
// Response with the correct id when one was present.
func Decode(data []byte) (*Frame, *ParseError) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Code: CodeParseError, Message: CanonicalMessage(CodeParseError)}
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, &ParseError{Code: CodeParseError, Message: CanonicalMessage(CodeParseError)}
		}
		if len(raws) == 0 {
			// Empty batch is itself Invalid Request (§3), not a parse error;
			// returned as a Batch frame with no Messages, which
			// IsEmptyBatch reports.
			return &Frame{Batch: true, Messages: nil}, nil
		}
		msgs := make([]*Message, len(raws))
		for i, r := range raws {
			msgs[i] = decodeElement(r)
		}
		return &Frame{Batch: true, Messages: msgs}, nil
	}

	if !json.Valid(trimmed) {
		return nil, &ParseError{Code: CodeParseError, Message: CanonicalMessage(CodeParseError)}
	}

	msg := decodeElement(trimmed)
	return &Frame{Single: msg}, nil
}

// decodeElement decodes a single JSON value into a Message, preserving
// whatever of jsonrpc/id/method/params it can read so Validate can report
// precise shape errors. A value that isn't even a JSON object produces a
// Message that fails validation with a nil id.
func decodeElement(data []byte) *Message {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &Message{invalidShape: true}
	}

	msg := &Message{}

	if len(raw.JSONRPC) > 0 {
		var s string
		if json.Unmarshal(raw.JSONRPC, &s) == nil {
			msg.JSONRPC = s
		} else {
			msg.invalidShape = true
		}
	}

	if len(raw.ID) > 0 && string(raw.ID) != "null" {
		if !isValidIDShape(raw.ID) {
			msg.invalidShape = true
		}
		msg.ID = raw.ID
	}

	if len(raw.Method) > 0 {
		var s string
		if json.Unmarshal(raw.Method, &s) == nil && s != "" {
			msg.Method = s
		} else {
			msg.invalidShape = true
		}
	} else {
		msg.invalidShape = true
	}

	if len(raw.Params) > 0 && string(raw.Params) != "null" {
		if !isValidParamsShape(raw.Params) {
			msg.invalidShape = true
		}
		msg.Params = raw.Params
	}

	return msg
}

func isValidIDShape(raw json.RawMessage) bool {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return true
	}
	var f float64
	return json.Unmarshal(raw, &f) == nil
}

func isValidParamsShape(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// Validate re-checks shape rules from §4.1 and returns the Invalid Request
// error the Validation middleware (§4.4) uses for defense-in-depth, or nil
// if the message is well-formed.
func (m *Message) Validate() *Error {
	if m.invalidShape {
		return &Error{Code: CodeInvalidRequest, Message: CanonicalMessage(CodeInvalidRequest)}
	}
	if m.JSONRPC != "2.0" {
		return &Error{Code: CodeInvalidRequest, Message: CanonicalMessage(CodeInvalidRequest)}
	}
	if m.Method == "" {
		return &Error{Code: CodeInvalidRequest, Message: CanonicalMessage(CodeInvalidRequest)}
	}
	return nil
}

// Encode serializes a single Response to wire bytes.
func Encode(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// EncodeBatch serializes the non-notification responses of a batch. Per §3,
// if every member was a notification the caller must send no body at all —
// EncodeBatch returns (nil, nil) for an empty slice so callers can tell the
// two cases apart.
func EncodeBatch(responses []*Response) ([]byte, error) {
	if len(responses) == 0 {
		return nil, nil
	}
	return json.Marshal(responses)
}
