package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/integrations/calendar"
	"github.com/hhyun1051/teamh-orchestrator/tools"
)

const tSystemPrompt = "You are the calendar manager. You create, update, delete, " +
	"and list calendar events. Resolve relative dates and times (\"tomorrow at " +
	"3pm\") to RFC3339 timestamps yourself before calling a tool; creating, " +
	"updating, and deleting events require approval, listing does not."

func buildManagerT(p BuildParams) (*agentnode.Node, error) {
	cal := p.Collaborators.Calendar

	eventArgSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"summary": {"type": "string"},
			"description": {"type": "string"},
			"start": {"type": "string", "description": "RFC3339 timestamp"},
			"end": {"type": "string", "description": "RFC3339 timestamp"}
		},
		"required": ["summary", "start", "end"],
		"additionalProperties": false
	}`)
	updateArgSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"event_id": {"type": "string"},
			"summary": {"type": "string"},
			"description": {"type": "string"},
			"start": {"type": "string", "description": "RFC3339 timestamp"},
			"end": {"type": "string", "description": "RFC3339 timestamp"}
		},
		"required": ["event_id", "summary", "start", "end"],
		"additionalProperties": false
	}`)
	deleteArgSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"event_id": {"type": "string"}},
		"required": ["event_id"],
		"additionalProperties": false
	}`)
	listArgSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"from": {"type": "string", "description": "RFC3339 timestamp"},
			"to": {"type": "string", "description": "RFC3339 timestamp"}
		},
		"required": ["from", "to"],
		"additionalProperties": false
	}`)

	specs := []tools.Spec{
		{
			Name:             "create_event",
			Description:      "Create a new calendar event.",
			Schema:           eventArgSchema,
			RequiresApproval: true,
			Handler:          createEventHandler(cal),
		},
		{
			Name:             "update_event",
			Description:      "Replace an existing calendar event's fields.",
			Schema:           updateArgSchema,
			RequiresApproval: true,
			Handler:          updateEventHandler(cal),
		},
		{
			Name:             "delete_event",
			Description:      "Delete a calendar event by id.",
			Schema:           deleteArgSchema,
			RequiresApproval: true,
			Handler:          deleteEventHandler(cal),
		},
		{
			Name:        "list_events",
			Description: "List calendar events starting within a time range.",
			Schema:      listArgSchema,
			Handler:     listEventsHandler(cal),
		},
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := p.Registry.Register(spec); err != nil {
			return nil, fmt.Errorf("agents: register manager_t tool %q: %w", spec.Name, err)
		}
		names = append(names, spec.Name)
	}

	return &agentnode.Node{
		Name:         Calendar,
		SystemPrompt: tSystemPrompt,
		Provider:     p.Provider,
		Toolset:      names,
		Registry:     p.Registry,
		Approval:     p.Approval,
		Telemetry:    p.Telemetry,
	}, nil
}

type calendarClient interface {
	CreateEvent(ctx context.Context, ev calendar.Event) (calendar.Event, error)
	UpdateEvent(ctx context.Context, eventID string, ev calendar.Event) (calendar.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
	ListEvents(ctx context.Context, from, to time.Time) ([]calendar.Event, error)
}

type eventArgs struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

func createEventHandler(cal calendarClient) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args eventArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode create_event arguments: %w", err)
		}
		start, end, err := parseRange(args.Start, args.End)
		if err != nil {
			return nil, err
		}
		created, err := cal.CreateEvent(ctx, calendar.Event{
			Summary:     args.Summary,
			Description: args.Description,
			Start:       start,
			End:         end,
		})
		if err != nil {
			return nil, fmt.Errorf("create event: %w", err)
		}
		return fmt.Sprintf("event %s created: %s", created.ID, created.Summary), nil
	}
}

type updateEventArgs struct {
	EventID     string `json:"event_id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

func updateEventHandler(cal calendarClient) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args updateEventArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode update_event arguments: %w", err)
		}
		start, end, err := parseRange(args.Start, args.End)
		if err != nil {
			return nil, err
		}
		updated, err := cal.UpdateEvent(ctx, args.EventID, calendar.Event{
			Summary:     args.Summary,
			Description: args.Description,
			Start:       start,
			End:         end,
		})
		if err != nil {
			return nil, fmt.Errorf("update event %q: %w", args.EventID, err)
		}
		return fmt.Sprintf("event %s updated: %s", updated.ID, updated.Summary), nil
	}
}

type deleteEventArgs struct {
	EventID string `json:"event_id"`
}

func deleteEventHandler(cal calendarClient) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args deleteEventArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode delete_event arguments: %w", err)
		}
		if err := cal.DeleteEvent(ctx, args.EventID); err != nil {
			return nil, fmt.Errorf("delete event %q: %w", args.EventID, err)
		}
		return fmt.Sprintf("event %s deleted", args.EventID), nil
	}
}

type listEventsArgs struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func listEventsHandler(cal calendarClient) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args listEventsArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode list_events arguments: %w", err)
		}
		from, to, err := parseRange(args.From, args.To)
		if err != nil {
			return nil, err
		}
		events, err := cal.ListEvents(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		if len(events) == 0 {
			return "no events found in that range", nil
		}
		var b strings.Builder
		for i, ev := range events {
			fmt.Fprintf(&b, "%d. [%s] %s (%s - %s)\n", i+1, ev.ID, ev.Summary,
				ev.Start.Format(time.RFC3339), ev.End.Format(time.RFC3339))
		}
		return b.String(), nil
	}
}

func parseRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start timestamp %q: %w", startRaw, err)
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end timestamp %q: %w", endRaw, err)
	}
	return start, end, nil
}
