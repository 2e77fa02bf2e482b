// Command server runs the HTTP/SSE Gateway (spec.md §6.1): it loads
// configuration, wires the checkpoint store, LLM provider, tool registry,
// agent team, and Graph Executor, then serves POST /chat/stream,
// POST /chat/resume, GET /state/{thread_id}, and GET / until the process
// receives a termination signal.
//
// # Configuration
//
// A YAML file (CONFIG_PATH, optional) supplies defaults; every field can be
// overridden by an environment variable (see config.Load). The server's own
// listen address is not part of config.Config since it is deployment
// topology, not runtime behavior:
//
//	SERVER_ADDR  - HTTP listen address (default: ":8080")
//	CONFIG_PATH  - path to an optional YAML config file
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hhyun1051/teamh-orchestrator/agentnode"
	"github.com/hhyun1051/teamh-orchestrator/agents"
	"github.com/hhyun1051/teamh-orchestrator/approval"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint/inmem"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint/redisstore"
	"github.com/hhyun1051/teamh-orchestrator/config"
	"github.com/hhyun1051/teamh-orchestrator/executor"
	"github.com/hhyun1051/teamh-orchestrator/gateway"
	"github.com/hhyun1051/teamh-orchestrator/hooks"
	"github.com/hhyun1051/teamh-orchestrator/integrations/anthropicllm"
	"github.com/hhyun1051/teamh-orchestrator/integrations/calendar"
	"github.com/hhyun1051/teamh-orchestrator/integrations/homeassistant"
	"github.com/hhyun1051/teamh-orchestrator/integrations/redisvector"
	"github.com/hhyun1051/teamh-orchestrator/integrations/websearch"
	"github.com/hhyun1051/teamh-orchestrator/llm"
	"github.com/hhyun1051/teamh-orchestrator/router"
	"github.com/hhyun1051/teamh-orchestrator/telemetry"
	"github.com/hhyun1051/teamh-orchestrator/tools"
	"github.com/hhyun1051/teamh-orchestrator/vectorstore"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := envOr("SERVER_ADDR", ":8080")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	telem := telemetry.Bundle{
		Logger:  telemetry.NewSlogLogger(nil),
		Metrics: telemetry.NoopMetrics{},
		Tracer:  telemetry.NoopTracer{},
	}

	provider, err := anthropicllm.NewFromAPIKey(cfg.LLM.AnthropicKey, cfg.LLM.ModelName)
	if err != nil {
		return fmt.Errorf("create llm provider: %w", err)
	}
	var rateLimitedProvider llm.Provider = provider
	if cfg.LLM.RateLimitTokensPerMinute > 0 {
		limiter := anthropicllm.NewRateLimiter(float64(cfg.LLM.RateLimitTokensPerMinute), float64(cfg.LLM.RateLimitTokensPerMinute))
		rateLimitedProvider = limiter.Wrap(provider)
	}

	store, closeStore, err := buildCheckpointStore(ctx, cfg.Checkpoint)
	if err != nil {
		return fmt.Errorf("create checkpoint store: %w", err)
	}
	defer closeStore()

	registry := tools.NewRegistry()
	approvalMiddleware := approval.New(registry, approval.Policy{})

	collaborators, closeCollaborators, err := buildCollaborators(ctx, cfg.Agents)
	if err != nil {
		return fmt.Errorf("create collaborators: %w", err)
	}
	defer closeCollaborators()

	nodes, err := agents.Build(agents.BuildParams{
		Registry:             registry,
		Provider:             rateLimitedProvider,
		Approval:             approvalMiddleware,
		Telemetry:            telem,
		Collaborators:        collaborators,
		SummarizeAfterTokens: cfg.Agents.Delegator.SummarizeAfterTokens,
	})
	if err != nil {
		return fmt.Errorf("build agents: %w", err)
	}
	for _, node := range nodes {
		node.Telemetry = telem
	}

	bus := hooks.NewBus()
	if _, err := bus.Register(hooks.SubscriberFunc(loggingSubscriber(telem))); err != nil {
		return fmt.Errorf("register logging subscriber: %w", err)
	}

	graph := &executor.Graph{
		Store: store,
		Router: &router.Node{
			Provider:     rateLimitedProvider,
			AgentIDs:     agentIDs(nodes),
			DefaultAgent: agents.Delegator,
			Telemetry:    telem,
		},
		Agents:    nodes,
		Hooks:     bus,
		Telemetry: telem,
	}

	srv := gateway.NewServer(graph)
	mux := http.NewServeMux()
	srv.Routes(mux)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on %s (agents=%v, checkpoint_durable=%v)", addr, agentIDs(nodes), cfg.Checkpoint.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildCheckpointStore selects the in-memory or Redis-backed Checkpoint
// Store per cfg.Enabled (spec.md §6.5), returning a no-op closer for the
// in-memory case so callers can always defer the result.
func buildCheckpointStore(ctx context.Context, cfg config.CheckpointConfig) (checkpoint.Store, func(), error) {
	if !cfg.Enabled {
		return inmem.New(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.ConnectionString})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	store := redisstore.New(rdb, cfg.KeyPrefix)
	closer := func() {
		if err := rdb.Close(); err != nil {
			log.Printf("close checkpoint redis: %v", err)
		}
	}
	return store, closer, nil
}

// buildCollaborators constructs the external-system clients each manager
// depends on, leaving a Collaborators field nil (and so its manager
// unregistered by agents.Build) when the matching config section is
// disabled.
func buildCollaborators(ctx context.Context, cfg config.AgentsConfig) (agents.Collaborators, func(), error) {
	var out agents.Collaborators
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.IoT.Enabled {
		out.HomeAssistant = homeassistant.New(cfg.IoT.BaseURL, cfg.IoT.APIToken)
	}
	if cfg.Search.Enabled {
		out.WebSearch = websearch.New(cfg.Search.BaseURL, cfg.Search.APIKey)
	}
	if cfg.Calendar.Enabled {
		out.Calendar = calendar.New(cfg.Calendar.BaseURL, cfg.Calendar.APIToken)
	}
	if cfg.Memory.Enabled {
		store, closer, err := buildVectorstore(ctx, cfg.Memory)
		if err != nil {
			closeAll()
			return agents.Collaborators{}, nil, err
		}
		out.Vectorstore = store
		closers = append(closers, closer)
	}

	return out, closeAll, nil
}

func buildVectorstore(ctx context.Context, cfg config.MemoryAgentConfig) (vectorstore.Store, func(), error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.ConnectionString})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	closer := func() {
		if err := rdb.Close(); err != nil {
			log.Printf("close vectorstore redis: %v", err)
		}
	}
	return redisvector.New(rdb, cfg.KeyPrefix), closer, nil
}

// loggingSubscriber logs every Bus event at Info level so diagnostics that
// have no client-facing equivalent — handoff_capped chief among them, spec.md
// §4.8's required loop-cap signal — reach at least the server's own logs
// instead of going nowhere.
func loggingSubscriber(telem telemetry.Bundle) func(ctx context.Context, event hooks.Event) error {
	return func(ctx context.Context, event hooks.Event) error {
		telem.Logger.Info(ctx, "graph event", "type", string(event.Type), "thread_id", event.ThreadID, "payload", event.Payload)
		return nil
	}
}

func agentIDs(nodes map[string]*agentnode.Node) []string {
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	return ids
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
