// Package tools implements the Tool Registry & Invoker (spec.md §4.3, C3): a
// process-wide catalog of callable tools, each with a JSON Schema describing
// its arguments, plus an Invoker that validates arguments before dispatching
// to the tool's handler.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hhyun1051/teamh-orchestrator/toolerror"
)

// Handler executes a tool call's arguments and returns a JSON-serializable
// result, or an error (ideally a *toolerror.ToolError) on failure.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// HandoffPrefix is the naming convention for built-in handoff tools
// (spec.md §4.3): a tool named HandoffPrefix+"X" signals a transfer of
// control to agent X. The handoff mechanism itself is detected from message
// content by the Handoff Detector (spec.md §6.4); this prefix only lets the
// Registry recognize and auto-register these tools for an agent's toolset.
const HandoffPrefix = "handoff_to_"

// Spec describes one invocable tool (spec.md §4.3): its name, a
// human-readable description surfaced to the LLM, its JSON Schema, whether
// it requires human approval before executing (spec.md §4.4), and the
// handler that performs the work.
type Spec struct {
	// Name is the tool identifier as referenced in LLM tool-call payloads.
	Name string
	// Description is surfaced to the LLM provider when offering this tool.
	Description string
	// Schema is the raw JSON Schema document describing Arguments.
	Schema json.RawMessage
	// RequiresApproval marks this tool as gated by Approval Middleware
	// (spec.md §4.4): calls to it are suspended pending a Tool Decision
	// instead of being executed immediately.
	RequiresApproval bool
	// Handler performs the tool's work. Handoff tools (see RegisterHandoff)
	// get a Handler too, one that just returns the HANDOFF_TO_ sentinel, so
	// Registry.Invoke never needs a special case for them.
	Handler Handler
}

// MetadataResult lets a Handler's result carry thread-scoped scratch state
// (spec.md §5: manager_d's todo list, manager_m's goal/progress tracking)
// alongside its human-readable text, without the Handler ever touching
// Conversation directly (the reducer remains the only code path permitted to
// build a new Conversation). The Agent Node folds Metadata into the
// state.Update it returns; Text becomes the Tool message's content exactly as
// a plain string result would.
type MetadataResult struct {
	Text     string
	Metadata map[string]string
}

// IsHandoff reports whether s is a built-in agent-transfer tool.
func (s Spec) IsHandoff() bool {
	return len(s.Name) > len(HandoffPrefix) && s.Name[:len(HandoffPrefix)] == HandoffPrefix
}

// Registry is a concurrency-safe catalog of tool Specs, scoped per agent via
// Toolset. The zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]Spec
	compiled map[string]*jsonschema.Schema
	compiler *jsonschema.Compiler
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[string]Spec),
		compiled: make(map[string]*jsonschema.Schema),
		compiler: jsonschema.NewCompiler(),
	}
}

// Register adds spec to the registry, compiling its JSON Schema eagerly so
// malformed schemas fail at startup rather than at first invocation. Register
// returns an error on a duplicate tool name.
func (r *Registry) Register(spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("tools: duplicate tool name %q", spec.Name)
	}

	if len(spec.Schema) > 0 {
		uri := "mem://tool/" + spec.Name
		if err := r.compiler.AddResource(uri, toAny(spec.Schema)); err != nil {
			return fmt.Errorf("tools: compiling schema for %q: %w", spec.Name, err)
		}
		schema, err := r.compiler.Compile(uri)
		if err != nil {
			return fmt.Errorf("tools: invalid schema for %q: %w", spec.Name, err)
		}
		r.compiled[spec.Name] = schema
	}

	r.specs[spec.Name] = spec
	return nil
}

// RegisterHandoff registers a handoff tool named HandoffPrefix+target whose
// Handler returns the HANDOFF_TO_ sentinel spec.md §6.4's Handoff Detector
// scans Tool message content for — invoking the tool is itself the handoff
// signal, so the Handler has nothing else to do.
func (r *Registry) RegisterHandoff(target, description string) error {
	return r.Register(Spec{
		Name:        HandoffPrefix + target,
		Description: description,
		Schema:      json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`),
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return "HANDOFF_TO_" + strings.ToUpper(target), nil
		},
	})
}

// Get returns the Spec registered under name.
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[name]
	return spec, ok
}

// Subset returns the Specs for the given tool names, in the order of names,
// ignoring any name not found (callers are expected to pre-validate toolset
// membership when wiring an agent; an unknown name here is silently dropped
// rather than panicking, since it is not a request-path error).
func (r *Registry) Subset(names []string) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(names))
	for _, n := range names {
		if s, ok := r.specs[n]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks args against name's compiled JSON Schema. A tool with no
// schema accepts any arguments.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	r.mu.RLock()
	schema, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return toolerror.Classified(fmt.Sprintf("arguments for %q are not valid JSON: %v", name, err), toolerror.ReasonInvalidArguments)
	}
	if err := schema.Validate(v); err != nil {
		return toolerror.Classified(fmt.Sprintf("arguments for %q failed validation: %v", name, err), toolerror.ReasonInvalidArguments)
	}
	return nil
}

// Invoke validates args against name's schema and, on success, calls its
// Handler. Invoke returns a *toolerror.ToolError classified
// ReasonInvalidArguments if name is unknown, has no handler, or fails schema
// validation.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (any, error) {
	spec, ok := r.Get(name)
	if !ok {
		return nil, toolerror.Classified(fmt.Sprintf("unknown tool %q", name), toolerror.ReasonInvalidArguments)
	}
	if spec.Handler == nil {
		return nil, toolerror.Classified(fmt.Sprintf("tool %q has no handler", name), toolerror.ReasonInvalidArguments)
	}
	if err := r.Validate(name, args); err != nil {
		return nil, err
	}
	result, err := spec.Handler(ctx, args)
	if err != nil {
		return nil, toolerror.FromError(err)
	}
	return result, nil
}

func toAny(raw json.RawMessage) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}
