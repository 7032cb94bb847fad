package frame

import "encoding/json"

// Message is the decoded shape shared by Requests and Notifications. A
// Message with an empty ID is a Notification: the server never generates a
// Response for it.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`

	// invalidShape is set by decodeElement when a field failed a shape
	// check (e.g. id present but not string/number/null); Validate()
	// surfaces it as Invalid Request without re-deriving the reason.
	invalidShape bool
}

// IsNotification reports whether m carries no id, per §3: "like Request but
// id absent. No response is ever returned."
func (m *Message) IsNotification() bool {
	return len(m.ID) == 0 || string(m.ID) == "null"
}

// Response is a JSON-RPC 2.0 Response: exactly one of Result or Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// NewResult builds a success Response, marshalling result to json.RawMessage.
// If marshalling fails the Response instead carries an internal error — this
// should never happen for well-formed tool output.
func NewResult(id json.RawMessage, result any) *Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, CodeInternalError, "failed to encode result", nil)
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: raw}
}

// NewErrorResponse builds a failure Response.
func NewErrorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

// Frame is the decoded top-level wire unit: either a single Message or a
// Batch of them, per §3.
type Frame struct {
	Batch    bool
	Single   *Message
	Messages []*Message // populated when Batch is true
}

// IsEmptyBatch reports whether f is a `[]` batch, which §3 treats as
// Invalid Request rather than a valid zero-element batch.
func (f *Frame) IsEmptyBatch() bool {
	return f.Batch && len(f.Messages) == 0
}
