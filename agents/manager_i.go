package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/tools"
)

// entityMap mirrors original_source/agents/manager_i.py's ENTITY_MAP: the
// Home Assistant entity ids behind this household's SmartThings integration.
// All of them register as "switch" entities in Home Assistant regardless of
// their logical role (light vs. outlet).
var entityMap = map[string]string{
	"living_room_light":          "switch.geosil",
	"bedroom_light":              "switch.naebang",
	"bathroom_light":             "switch.kyubeu",
	"living_room_speaker_outlet": "switch.seupikeo",
}

const iSystemPrompt = "You are the IoT control manager. You operate smart-home " +
	"devices: lights in the living room, bedroom, and bathroom, and the living " +
	"room speaker outlet. Shutting down the mini PC and turning off the speaker " +
	"outlet are sensitive actions requiring approval."

func buildManagerI(p BuildParams) (*agentnode.Node, error) {
	ha := p.Collaborators.HomeAssistant

	roomArgSchema := json.RawMessage(`{
		"type": "object",
		"properties": {"room": {"type": "string", "description": "living_room, bedroom, or bathroom"}},
		"required": ["room"],
		"additionalProperties": false
	}`)
	noArgSchema := json.RawMessage(`{"type":"object","properties":{},"additionalProperties":false}`)
	statusArgSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"room": {"type": "string"},
			"device_type": {"type": "string", "enum": ["light", "speaker"]}
		},
		"required": ["room"],
		"additionalProperties": false
	}`)

	specs := []tools.Spec{
		{
			Name:             "shutdown_mini_pc",
			Description:      "Shut down the mini PC. Dangerous; only use when explicitly requested.",
			Schema:           noArgSchema,
			RequiresApproval: true,
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return "mini PC shutdown initiated", nil
			},
		},
		{
			Name:        "turn_on_light",
			Description: "Turn on the light in a room (living_room, bedroom, or bathroom).",
			Schema:      roomArgSchema,
			Handler:     roomLightHandler(ha, "turn_on"),
		},
		{
			Name:        "turn_off_light",
			Description: "Turn off the light in a room (living_room, bedroom, or bathroom).",
			Schema:      roomArgSchema,
			Handler:     roomLightHandler(ha, "turn_off"),
		},
		{
			Name:        "turn_on_speaker",
			Description: "Turn on the living room speaker via its smart outlet.",
			Schema:      noArgSchema,
			Handler:     speakerHandler(ha, "turn_on"),
		},
		{
			Name:             "turn_off_speaker",
			Description:      "Turn off the living room speaker via its smart outlet.",
			Schema:           noArgSchema,
			RequiresApproval: true,
			Handler:          speakerHandler(ha, "turn_off"),
		},
		{
			Name:        "get_device_status",
			Description: "Get the current on/off status of a light or the speaker.",
			Schema:      statusArgSchema,
			Handler:     deviceStatusHandler(ha),
		},
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := p.Registry.Register(spec); err != nil {
			return nil, fmt.Errorf("agents: register manager_i tool %q: %w", spec.Name, err)
		}
		names = append(names, spec.Name)
	}

	return &agentnode.Node{
		Name:         IoT,
		SystemPrompt: iSystemPrompt,
		Provider:     p.Provider,
		Toolset:      names,
		Registry:     p.Registry,
		Approval:     p.Approval,
		Telemetry:    p.Telemetry,
	}, nil
}

type roomArgs struct {
	Room string `json:"room"`
}

func roomLightHandler(ha homeAssistantClient, action string) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args roomArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode room argument: %w", err)
		}
		entityID, ok := entityMap[args.Room+"_light"]
		if !ok {
			return fmt.Sprintf("unknown room %q", args.Room), nil
		}
		if err := ha.CallService(ctx, "switch", action, entityID, nil); err != nil {
			return nil, fmt.Errorf("control light in %s: %w", args.Room, err)
		}
		return fmt.Sprintf("%s light %s", args.Room, actionVerb(action)), nil
	}
}

func speakerHandler(ha homeAssistantClient, action string) tools.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		entityID := entityMap["living_room_speaker_outlet"]
		if err := ha.CallService(ctx, "switch", action, entityID, nil); err != nil {
			return nil, fmt.Errorf("control speaker outlet: %w", err)
		}
		return fmt.Sprintf("living room speaker %s", actionVerb(action)), nil
	}
}

type statusArgs struct {
	Room       string `json:"room"`
	DeviceType string `json:"device_type"`
}

func deviceStatusHandler(ha homeAssistantClient) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args statusArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode status arguments: %w", err)
		}
		entityKey := args.Room + "_light"
		if args.DeviceType == "speaker" {
			entityKey = "living_room_speaker_outlet"
		}
		entityID, ok := entityMap[entityKey]
		if !ok {
			return fmt.Sprintf("unknown device %q in room %q", args.DeviceType, args.Room), nil
		}
		on, err := ha.IsOn(ctx, entityID)
		if err != nil {
			return nil, fmt.Errorf("read device status: %w", err)
		}
		if on {
			return fmt.Sprintf("%s is on", entityKey), nil
		}
		return fmt.Sprintf("%s is off", entityKey), nil
	}
}

func actionVerb(action string) string {
	if action == "turn_on" {
		return "turned on"
	}
	return "turned off"
}

// homeAssistantClient is the narrow surface manager_i's tools need; satisfied
// by *homeassistant.Client.
type homeAssistantClient interface {
	CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error
	IsOn(ctx context.Context, entityID string) (bool, error)
}
