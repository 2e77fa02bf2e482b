// Package anthropicllm adapts the Anthropic Claude Messages API
// (github.com/anthropics/anthropic-sdk-go) to llm.Provider, translating
// requests into sdk.MessageNewParams and streaming events back into
// llm.Chunk values.
package anthropicllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/message"
)

// MessagesClient captures the subset of the Anthropic SDK client used by
// this adapter (satisfied by *sdk.MessageService), letting tests substitute
// a fake that drives a synthetic event stream.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Client implements llm.Provider on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	temperature  float64
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// New builds a Client wrapping msg.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropicllm: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropicllm: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    maxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a Client using the Anthropic SDK's default HTTP
// client, authenticated with apiKey.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropicllm: api key is required")
	}
	sdkClient := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&sdkClient.Messages, Options{DefaultModel: defaultModel})
}

// StreamChat implements llm.Provider.
func (c *Client) StreamChat(ctx context.Context, req llm.ChatRequest, onChunk func(llm.Chunk) error) error {
	params, err := c.buildParams(req)
	if err != nil {
		return err
	}

	stream := c.msg.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		textContent string
		toolCalls   []message.ToolCall
		toolInputs  = make(map[int]*toolAccumulator)
	)

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				toolInputs[int(ev.Index)] = &toolAccumulator{id: toolUse.ID, name: toolUse.Name}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				textContent += delta.Text
				if err := onChunk(llm.Chunk{Kind: llm.ChunkToken, Token: delta.Text}); err != nil {
					return err
				}
			case sdk.InputJSONDelta:
				if acc := toolInputs[int(ev.Index)]; acc != nil {
					acc.fragments = append(acc.fragments, delta.PartialJSON)
				}
			}
		case sdk.ContentBlockStopEvent:
			if acc := toolInputs[int(ev.Index)]; acc != nil {
				args := acc.finalJSON()
				call := message.ToolCall{ID: acc.id, Name: acc.name, Arguments: args}
				toolCalls = append(toolCalls, call)
				delete(toolInputs, int(ev.Index))
				if err := onChunk(llm.Chunk{Kind: llm.ChunkToolCall, ToolCall: call}); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropicllm: stream: %w", err)
	}

	return onChunk(llm.Chunk{
		Kind: llm.ChunkEnd,
		End: llm.Response{
			Content:   textContent,
			ToolCalls: toolCalls,
		},
	})
}

type toolAccumulator struct {
	id        string
	name      string
	fragments []string
}

func (t *toolAccumulator) finalJSON() json.RawMessage {
	joined := ""
	for _, f := range t.fragments {
		joined += f
	}
	if joined == "" {
		joined = "{}"
	}
	return json.RawMessage(joined)
}

func (c *Client) buildParams(req llm.ChatRequest) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropicllm: messages are required")
	}

	sdkMessages, system, err := encodeMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}

	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxTokens := c.maxTokens

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  sdkMessages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	} else if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}

	if len(req.Tools) > 0 {
		toolParams, err := encodeTools(req.Tools)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		params.Tools = toolParams
	}

	return params, nil
}

func encodeMessages(msgs []message.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	converted := make([]sdk.MessageParam, 0, len(msgs))
	var system []sdk.TextBlockParam

	for _, m := range msgs {
		switch m.Role {
		case message.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case message.RoleUser:
			converted = append(converted, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case message.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &input); err != nil {
						return nil, nil, fmt.Errorf("anthropicllm: decoding tool call arguments for %q: %w", tc.Name, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			converted = append(converted, sdk.NewAssistantMessage(blocks...))
		case message.RoleTool:
			converted = append(converted, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return converted, system, nil
}

func encodeTools(offers []llm.ToolOffer) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(offers))
	for _, offer := range offers {
		schema := sdk.ToolInputSchemaParam{}
		if len(offer.Schema) > 0 {
			var decoded map[string]any
			if err := json.Unmarshal(offer.Schema, &decoded); err != nil {
				return nil, fmt.Errorf("anthropicllm: decoding schema for tool %q: %w", offer.Name, err)
			}
			if props, ok := decoded["properties"]; ok {
				schema.Properties = props
			}
		}
		tool := sdk.ToolUnionParamOfTool(schema, offer.Name)
		if tool.OfTool != nil {
			tool.OfTool.Description = sdk.String(offer.Description)
		}
		out = append(out, tool)
	}
	return out, nil
}
