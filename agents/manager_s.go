package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/integrations/websearch"
	"github.com/hhyun1051/teamh-orchestrator/tools"
)

const sSystemPrompt = "You are the search manager. You look up information and " +
	"news on the open web. Searching has no side effects and never requires " +
	"approval."

func buildManagerS(p BuildParams) (*agentnode.Node, error) {
	ws := p.Collaborators.WebSearch

	searchSchema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"max_results": {"type": "integer", "minimum": 1, "maximum": 20}
		},
		"required": ["query"],
		"additionalProperties": false
	}`)

	specs := []tools.Spec{
		{
			Name:        "search_web",
			Description: "Search the web for pages matching a query.",
			Schema:      searchSchema,
			Handler:     searchWebHandler(ws),
		},
		{
			Name:        "search_news",
			Description: "Search for recent news articles matching a query.",
			Schema:      searchSchema,
			Handler:     searchNewsHandler(ws),
		},
	}

	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		if err := p.Registry.Register(spec); err != nil {
			return nil, fmt.Errorf("agents: register manager_s tool %q: %w", spec.Name, err)
		}
		names = append(names, spec.Name)
	}

	return &agentnode.Node{
		Name:         Search,
		SystemPrompt: sSystemPrompt,
		Provider:     p.Provider,
		Toolset:      names,
		Registry:     p.Registry,
		Approval:     p.Approval,
		Telemetry:    p.Telemetry,
	}, nil
}

type webSearchClient interface {
	Search(ctx context.Context, query string, maxResults int) ([]websearch.Result, error)
	SearchNews(ctx context.Context, query string, maxResults int) ([]websearch.Result, error)
}

type searchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func searchWebHandler(ws webSearchClient) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args searchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode search_web arguments: %w", err)
		}
		if args.MaxResults <= 0 {
			args.MaxResults = 5
		}
		results, err := ws.Search(ctx, args.Query, args.MaxResults)
		if err != nil {
			return nil, fmt.Errorf("search web: %w", err)
		}
		return formatResults(results), nil
	}
}

func searchNewsHandler(ws webSearchClient) tools.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args searchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("decode search_news arguments: %w", err)
		}
		if args.MaxResults <= 0 {
			args.MaxResults = 5
		}
		results, err := ws.SearchNews(ctx, args.Query, args.MaxResults)
		if err != nil {
			return nil, fmt.Errorf("search news: %w", err)
		}
		return formatResults(results), nil
	}
}

func formatResults(results []websearch.Result) string {
	if len(results) == 0 {
		return "no results found"
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n%s\n", i+1, r.Title, r.URL, r.Content)
	}
	return b.String()
}
