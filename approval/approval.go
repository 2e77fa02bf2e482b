// Package approval implements the Approval Middleware (spec.md §4.4, C4):
// it wraps the Tool Invoker, splitting a batch of pending tool calls into
// those that may execute immediately and those that require a human
// decision, and folds a resume request's Tool Decisions back into Tool
// messages.
package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
	"github.com/hhyun1051/teamh-orchestrator/message"
	"github.com/hhyun1051/teamh-orchestrator/toolerror"
	"github.com/hhyun1051/teamh-orchestrator/tools"
)

// Prompt renders the deterministic operator-facing prompt for a tool call
// awaiting approval. Implementations typically wrap a text/template compiled
// with missingkey=error (see Template below).
type Prompt func(ctx context.Context, call message.ToolCall) (string, error)

// Policy configures how approval prompts are rendered. Which tools require
// approval is decided only by Spec.RequiresApproval in the tools.Registry; a
// gated tool absent from Prompts gets the default prompt.
type Policy struct {
	// Prompts overrides the default prompt renderer per tool name.
	Prompts map[string]Prompt
}

// Middleware applies Policy against a tools.Registry to split and resolve
// tool call batches.
type Middleware struct {
	registry *tools.Registry
	policy   Policy
}

// New constructs a Middleware backed by registry and policy.
func New(registry *tools.Registry, policy Policy) *Middleware {
	return &Middleware{registry: registry, policy: policy}
}

// Split partitions calls into those that may execute immediately and an
// Interrupt describing those that require a Tool Decision, in the order
// they appeared in the assistant message (spec.md §4.4 steps 1-2). If no
// call requires approval, the returned Interrupt is nil.
func (m *Middleware) Split(ctx context.Context, calls []message.ToolCall) (toExecute []message.ToolCall, interrupt *checkpoint.Interrupt, err error) {
	for _, call := range calls {
		spec, _ := m.registry.Get(call.Name)
		if !spec.RequiresApproval {
			toExecute = append(toExecute, call)
			continue
		}

		description, err := m.renderPrompt(ctx, call)
		if err != nil {
			return nil, nil, fmt.Errorf("approval: render prompt for %q: %w", call.Name, err)
		}

		if interrupt == nil {
			interrupt = &checkpoint.Interrupt{}
		}
		interrupt.Actions = append(interrupt.Actions, checkpoint.ActionRequest{
			ToolCallID:  call.ID,
			ToolName:    call.Name,
			Arguments:   call.Arguments,
			Description: description,
			Allowed:     []checkpoint.DecisionKind{checkpoint.DecisionApprove, checkpoint.DecisionReject},
		})
	}
	return toExecute, interrupt, nil
}

func (m *Middleware) renderPrompt(ctx context.Context, call message.ToolCall) (string, error) {
	if render, ok := m.policy.Prompts[call.Name]; ok {
		return render(ctx, call)
	}
	return defaultPrompt(call)
}

// defaultPrompt renders "<tool> requested with arguments <json>" when no
// Policy override exists for the tool.
func defaultPrompt(call message.ToolCall) (string, error) {
	return Template(fmt.Sprintf("%s requested with arguments {{json .Arguments}}", call.Name), call)
}

// Template renders src against data using text/template compiled with
// missingkey=error, matching the teacher's confirmation-rendering contract:
// a template referencing a field absent from data is a bug in the
// tool/template pairing and must fail loudly rather than silently rendering
// "<no value>".
func Template(src string, data any) (string, error) {
	t, err := template.New("approval").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)
				if err != nil {
					return "", err
				}
				return string(b), nil
			},
		}).
		Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Decision is an operator's resolution for one pending Action Request
// (spec.md §4.4). Decision pairs positionally with
// checkpoint.Interrupt.Actions: the Nth Decision resolves the Nth Action.
type Decision struct {
	Kind checkpoint.DecisionKind
	// EditedName and EditedArguments apply only when Kind ==
	// checkpoint.DecisionEdit.
	EditedName      string
	EditedArguments json.RawMessage
	// RejectionMessage is the content of the synthesized refusal Tool
	// message when Kind == checkpoint.DecisionReject. If empty, a default
	// message is used.
	RejectionMessage string
}

// Resolve folds decisions (one per action, same order) into Tool messages:
// the result of calling invoke for each Approve/Edit decision, and a
// synthesized refusal message for each Reject decision. Resolve returns a structured error — aborting
// the request without losing the prior checkpoint — if decisions is the
// wrong length or contains an unknown Kind (spec.md §4.4 final paragraph).
func (m *Middleware) Resolve(
	ctx context.Context,
	actions []checkpoint.ActionRequest,
	decisions []Decision,
	invoke func(ctx context.Context, name string, args json.RawMessage) (any, error),
) ([]message.Message, error) {
	if len(decisions) != len(actions) {
		return nil, toolerror.Classified(
			fmt.Sprintf("approval: expected %d decisions, got %d", len(actions), len(decisions)),
			toolerror.ReasonInvalidArguments,
		)
	}

	results := make([]message.Message, 0, len(actions))
	for i, action := range actions {
		decision := decisions[i]
		switch decision.Kind {
		case checkpoint.DecisionApprove:
			out, err := invoke(ctx, action.ToolName, action.Arguments)
			results = append(results, toolResultMessage(action.ToolCallID, action.ToolName, out, err))

		case checkpoint.DecisionEdit:
			name := decision.EditedName
			if name == "" {
				name = action.ToolName
			}
			args := decision.EditedArguments
			if args == nil {
				args = action.Arguments
			}
			out, err := invoke(ctx, name, args)
			results = append(results, toolResultMessage(action.ToolCallID, name, out, err))

		case checkpoint.DecisionReject:
			msg := decision.RejectionMessage
			if msg == "" {
				msg = fmt.Sprintf("the operator rejected this call to %s", action.ToolName)
			}
			results = append(results, message.NewTool(action.ToolCallID, action.ToolName, msg))

		default:
			return nil, toolerror.Classified(
				fmt.Sprintf("approval: unknown decision kind %q for tool call %q", decision.Kind, action.ToolCallID),
				toolerror.ReasonInvalidArguments,
			)
		}
	}
	return results, nil
}

func toolResultMessage(toolCallID, toolName string, out any, err error) message.Message {
	if err != nil {
		return message.NewTool(toolCallID, toolName, toolerror.FromError(err).Error())
	}
	content, marshalErr := json.Marshal(out)
	if marshalErr != nil {
		return message.NewTool(toolCallID, toolName, fmt.Sprintf("%v", out))
	}
	return message.NewTool(toolCallID, toolName, string(content))
}
