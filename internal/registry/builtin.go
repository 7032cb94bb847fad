// ABOUTME: In-process ToolModule implementations: a function-backed module for
// ABOUTME: Go-native tools, and a static module for manifest-declared metadata.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler executes a single tool call in-process.
type Handler func(ctx context.Context, callCtx CallContext, arguments json.RawMessage) (json.RawMessage, error)

// FuncModule is a ToolModule backed by plain Go functions, the in-process
// analogue of the teacher's BuiltinPack/BuiltinTool pair.
type FuncModule struct {
	namespace string
	defs      []ToolDefinition
	handlers  map[string]Handler
}

// NewFuncModule creates an empty FuncModule under the given namespace.
// Pass "" to register tools without a namespace prefix (legacy tools).
func NewFuncModule(namespace string) *FuncModule {
	return &FuncModule{
		namespace: namespace,
		handlers:  make(map[string]Handler),
	}
}

// Add registers one tool's definition and handler with the module. Panics
// on a duplicate name within the same module since that is a programming
// error caught at startup, not a runtime condition.
func (m *FuncModule) Add(def ToolDefinition, h Handler) *FuncModule {
	if _, exists := m.handlers[def.Name]; exists {
		panic(fmt.Sprintf("registry: duplicate tool %q added to module %q", def.Name, m.namespace))
	}
	m.defs = append(m.defs, def)
	m.handlers[def.Name] = h
	return m
}

func (m *FuncModule) Namespace() string        { return m.namespace }
func (m *FuncModule) List() []ToolDefinition    { return append([]ToolDefinition(nil), m.defs...) }
func (m *FuncModule) Shutdown(context.Context) error { return nil }

func (m *FuncModule) Call(ctx context.Context, callCtx CallContext, toolName string, arguments json.RawMessage) (json.RawMessage, error) {
	h, ok := m.handlers[toolName]
	if !ok {
		return nil, &ToolError{Kind: ToolErrorKindUnavailable, Message: "tool not implemented: " + toolName}
	}
	return h(ctx, callCtx, arguments)
}

// StaticModule exposes manifest-declared ToolDefinitions whose
// implementation lives elsewhere (or not at all yet); calling one of its
// tools always fails with ToolErrorKindUnavailable. It exists so a
// deployment can publish a tool catalog (tools/list) ahead of wiring a real
// handler, matching the manifest/implementation split described in
// SPEC_FULL.md §11.3.
type StaticModule struct {
	namespace string
	defs      []ToolDefinition
}

// NewStaticModule builds a StaticModule from manifest entries sharing a
// namespace. Callers typically group ParseManifest's output by Namespace
// first.
func NewStaticModule(namespace string, defs []ToolDefinition) *StaticModule {
	return &StaticModule{namespace: namespace, defs: defs}
}

func (m *StaticModule) Namespace() string     { return m.namespace }
func (m *StaticModule) List() []ToolDefinition { return append([]ToolDefinition(nil), m.defs...) }
func (m *StaticModule) Shutdown(context.Context) error { return nil }

func (m *StaticModule) Call(ctx context.Context, callCtx CallContext, toolName string, arguments json.RawMessage) (json.RawMessage, error) {
	return nil, &ToolError{Kind: ToolErrorKindUnavailable, Message: "tool not yet implemented: " + toolName}
}
