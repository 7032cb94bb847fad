// ABOUTME: ToolModule and ToolDefinition types consumed by the registry and dispatcher.
// ABOUTME: The core never inspects what a tool does beyond this interface and its schemas.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"time"
)

// toolNamePattern matches the name grammar required by the data model:
// ^[A-Za-z_][A-Za-z0-9_.-]*$
var toolNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

// ValidToolName reports whether name satisfies the tool-name grammar.
func ValidToolName(name string) bool {
	return name != "" && toolNamePattern.MatchString(name)
}

// ToolDefinition describes a single tool exposed through a ToolModule.
// Immutable once registered; to change it, unregister and re-register.
type ToolDefinition struct {
	Name         string          `json:"name"`
	DisplayName  string          `json:"displayName,omitempty"`
	Description  string          `json:"description"`
	Version      string          `json:"version,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	Capabilities []string        `json:"capabilities,omitempty"`

	// Timeout overrides the dispatcher's default per-request deadline for
	// this tool specifically. Zero means "use the default."
	Timeout time.Duration `json:"-"`
}

// ToolErrorKind classifies a ToolError for the Error Mapper (§7 Execution kind).
type ToolErrorKind string

const (
	ToolErrorKindInvalidInput ToolErrorKind = "invalid_input"
	ToolErrorKindExecution    ToolErrorKind = "execution"
	ToolErrorKindUnavailable  ToolErrorKind = "unavailable"
)

// ToolError is the declared error a ToolModule returns when it fails in an
// expected way. An uncaught panic/error that is not a ToolError is instead
// mapped to JSON-RPC -32603 by the dispatcher.
type ToolError struct {
	Kind    ToolErrorKind
	Message string
	Details any
}

func (e *ToolError) Error() string { return e.Message }

// CallContext carries everything a ToolModule.Call needs that isn't part of
// the tool's own arguments: correlation, cancellation and a scoped logger.
type CallContext struct {
	RequestID   string
	ConnectionID string
	Deadline    time.Time
	Logger      *slog.Logger
}

// ToolModule is the external collaborator interface the core consumes but
// never implements. Concrete tool packs (file I/O, shell, HTTP, git, ...)
// live entirely behind this interface.
type ToolModule interface {
	// Namespace returns the module's namespace used to compute fully
	// qualified tool names, or "" to opt out of prefixing (legacy tools).
	Namespace() string
	// List returns the tool definitions this module exposes.
	List() []ToolDefinition
	// Call executes tool_name with the given raw JSON arguments.
	Call(ctx context.Context, callCtx CallContext, toolName string, arguments json.RawMessage) (json.RawMessage, error)
	// Shutdown releases any resources held by the module.
	Shutdown(ctx context.Context) error
}
