// ABOUTME: Thread-safe registry for ToolModules and their ToolDefinitions.
// ABOUTME: Computes fully-qualified tool names, detects collisions, and resolves calls.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrInvalidToolName indicates a tool name does not match the required grammar.
var ErrInvalidToolName = errors.New("invalid tool name")

// ConflictError indicates a fully-qualified tool name is already registered.
type ConflictError struct {
	Name       string
	ExistingOwner string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tool %q already registered by %q", e.Name, e.ExistingOwner)
}

// AmbiguousLegacyNameError names a root-namespace (legacy) tool name that is
// already taken. Register checks fully-qualified names first, and a legacy
// tool's fully-qualified name is its bare name, so two legacy tools with the
// same name are reported as a *ConflictError.
type AmbiguousLegacyNameError struct {
	Name string
}

func (e *AmbiguousLegacyNameError) Error() string {
	return fmt.Sprintf("ambiguous legacy tool name %q", e.Name)
}

// Handle is an opaque registration handle returned by Register. Passing it
// to Unregister removes every tool that registration contributed, atomically.
type Handle struct {
	id     uint64
	module ToolModule
}

type registeredTool struct {
	def        ToolDefinition
	module     ToolModule
	moduleName string // tool name as known to the module (unqualified)
	handleID   uint64
}

// Registry tracks every registered ToolModule and the fully-qualified names
// its tools expose. Reads are lock-free-ish (RWMutex read lock); writes
// (register/unregister) are fully serialized, matching §5's "read-mostly,
// serialized writes" rule for the tool registry.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]*registeredTool // fully-qualified name -> tool
	legacy   map[string]*registeredTool // root-namespace (unqualified) name -> tool, for ambiguity detection
	handles  map[uint64][]string        // handle id -> fully-qualified names it owns
	nextID   uint64
	logger   *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*registeredTool),
		legacy:  make(map[string]*registeredTool),
		handles: make(map[uint64][]string),
		logger:  logger.With("component", "registry"),
	}
}

// qualifiedName computes the fully-qualified name for a tool given its
// module's namespace, per §4.5: "<namespace>.<tool_name>" unless the module
// opts out of prefixing by returning "" from Namespace().
func qualifiedName(namespace, toolName string) string {
	if namespace == "" {
		return toolName
	}
	return namespace + "." + toolName
}

// Register validates and stores every tool a ToolModule declares, computing
// fully-qualified names and atomically rejecting the whole registration on
// any collision (no partial registration is ever left behind).
func (r *Registry) Register(module ToolModule) (*Handle, error) {
	namespace := module.Namespace()
	defs := module.List()

	r.mu.Lock()
	defer r.mu.Unlock()

	type planned struct {
		fqName     string
		moduleName string
	}
	plan := make([]planned, 0, len(defs))

	for _, def := range defs {
		if !ValidToolName(def.Name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidToolName, def.Name)
		}
		fq := qualifiedName(namespace, def.Name)
		if _, exists := r.tools[fq]; exists {
			return nil, &ConflictError{Name: fq, ExistingOwner: r.tools[fq].module.Namespace()}
		}
		if namespace == "" {
			if _, exists := r.legacy[def.Name]; exists {
				return nil, &AmbiguousLegacyNameError{Name: def.Name}
			}
		}
		plan = append(plan, planned{fqName: fq, moduleName: def.Name})
	}

	r.nextID++
	handleID := r.nextID
	names := make([]string, 0, len(defs))

	for i, def := range defs {
		def.Name = plan[i].fqName
		rt := &registeredTool{
			def:        def,
			module:     module,
			moduleName: plan[i].moduleName,
			handleID:   handleID,
		}
		r.tools[plan[i].fqName] = rt
		if namespace == "" {
			r.legacy[def.Name] = rt
		}
		names = append(names, plan[i].fqName)
	}
	r.handles[handleID] = names

	r.logger.Info("tool module registered",
		"namespace", namespace,
		"tool_count", len(defs),
		"total_tools", len(r.tools),
	)

	return &Handle{id: handleID, module: module}, nil
}

// Unregister removes every tool a Handle's registration contributed.
// Unregistering an already-removed handle is a no-op.
func (r *Registry) Unregister(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	names, ok := r.handles[h.id]
	if !ok {
		return
	}
	for _, fq := range names {
		if rt, exists := r.tools[fq]; exists {
			if rt.module.Namespace() == "" {
				delete(r.legacy, rt.moduleName)
			}
			delete(r.tools, fq)
		}
	}
	delete(r.handles, h.id)

	r.logger.Info("tool module unregistered", "tool_count", len(names), "remaining_tools", len(r.tools))
}

// List returns a snapshot of every registered ToolDefinition.
func (r *Registry) List() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDefinition, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.def)
	}
	return out
}

// ListForCapabilities returns definitions for tools the caller may use given
// its capability set. A tool with no required capabilities is always
// included. A nil caps set is treated as "all capabilities" (no
// filtering) — matching the teacher's "no auth -> default caps" fallback;
// an empty, non-nil set matches only tools that require no capabilities.
func (r *Registry) ListForCapabilities(caps []string) []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if caps == nil {
		out := make([]ToolDefinition, 0, len(r.tools))
		for _, rt := range r.tools {
			out = append(out, rt.def)
		}
		return out
	}

	capSet := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		capSet[c] = struct{}{}
	}

	out := make([]ToolDefinition, 0, len(r.tools))
	for _, rt := range r.tools {
		if hasAllCapabilities(rt.def.Capabilities, capSet) {
			out = append(out, rt.def)
		}
	}
	return out
}

func hasAllCapabilities(required []string, have map[string]struct{}) bool {
	for _, req := range required {
		if _, ok := have[req]; !ok {
			return false
		}
	}
	return true
}

// Resolve looks up a tool by name. Per §4.5: exact match on the
// fully-qualified name first; if absent and the name has no dot, attempt
// resolution in the legacy (root) namespace.
func (r *Registry) Resolve(name string) (module ToolModule, toolName string, def ToolDefinition, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rt, exists := r.tools[name]; exists {
		return rt.module, rt.moduleName, rt.def, true
	}
	if rt, exists := r.legacy[name]; exists {
		return rt.module, rt.moduleName, rt.def, true
	}
	return nil, "", ToolDefinition{}, false
}

// Definition returns the ToolDefinition for a fully-qualified or legacy name.
func (r *Registry) Definition(name string) (ToolDefinition, bool) {
	_, _, def, ok := r.Resolve(name)
	return def, ok
}

// Count returns the number of registered tools (for metrics/tests).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Shutdown calls Shutdown on every distinct registered module and clears the
// registry. Errors are collected, logged, and the first is returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	seen := make(map[ToolModule]struct{})
	modules := make([]ToolModule, 0, len(r.handles))
	for _, names := range r.handles {
		if len(names) == 0 {
			continue
		}
		if rt, ok := r.tools[names[0]]; ok {
			if _, dup := seen[rt.module]; !dup {
				seen[rt.module] = struct{}{}
				modules = append(modules, rt.module)
			}
		}
	}
	r.tools = make(map[string]*registeredTool)
	r.legacy = make(map[string]*registeredTool)
	r.handles = make(map[uint64][]string)
	r.mu.Unlock()

	var firstErr error
	for _, m := range modules {
		if err := m.Shutdown(ctx); err != nil {
			r.logger.Warn("tool module shutdown failed", "namespace", m.Namespace(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
