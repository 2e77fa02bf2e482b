// Package gateway implements the HTTP/SSE Gateway (spec.md §6.1, C10): the
// process's only externally reachable surface, translating
// POST /chat/stream, POST /chat/resume, GET /state/{thread_id}, and GET /
// into calls against the Graph Executor.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/hhyun1051/teamh-orchestrator/approval"
	"github.com/hhyun1051/teamh-orchestrator/checkpoint"
	"github.com/hhyun1051/teamh-orchestrator/executor"
	"github.com/hhyun1051/teamh-orchestrator/runtimectx"
	"github.com/hhyun1051/teamh-orchestrator/state"
	"github.com/hhyun1051/teamh-orchestrator/stream"
)

// Server holds everything the Gateway needs to translate HTTP requests into
// executor.Graph calls and serialize their results and streamed events back
// onto the wire exactly as spec.md §6.1 describes.
type Server struct {
	Graph *executor.Graph

	threads threadLocks
}

// NewServer constructs a Server around a fully wired Graph (cmd/server calls
// this after agents.Build and executor.Graph assembly succeed).
func NewServer(graph *executor.Graph) *Server {
	return &Server{Graph: graph, threads: newThreadLocks()}
}

// threadLocks hands out one *sync.Mutex per thread id so two concurrent
// requests against the same thread id can never both load a checkpoint,
// run a node, and save — the second would silently overwrite the first's
// progress since neither Store implementation rejects a stale write
// (spec.md §5: "a thread id processes one turn at a time"). Requests on
// different thread ids never block each other. The map only grows, never
// shrinks, which is fine at the scale of distinct conversation threads a
// single process serves; it is not a cache keyed by request volume.
type threadLocks struct {
	mu    *sync.Mutex
	locks map[string]*sync.Mutex
}

func newThreadLocks() threadLocks {
	return threadLocks{mu: &sync.Mutex{}, locks: make(map[string]*sync.Mutex)}
}

// lock blocks until threadID's turn, then returns a func to release it.
func (t threadLocks) lock(threadID string) func() {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		t.locks[threadID] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Routes registers every endpoint spec.md §6.1 names onto mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat/stream", s.handleChatStream)
	mux.HandleFunc("POST /chat/resume", s.handleChatResume)
	mux.HandleFunc("GET /state/{thread_id}", s.handleGetState)
	mux.HandleFunc("GET /{$}", s.handleLiveness)
}

type chatStreamRequest struct {
	Message   string `json:"message"`
	ThreadID  string `json:"thread_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.ThreadID == "" {
		writeJSONError(w, http.StatusBadRequest, errors.New("thread_id is required"))
		return
	}

	unlock := s.threads.lock(req.ThreadID)
	defer unlock()

	rc := runtimectx.RunContext{ThreadID: req.ThreadID, UserID: req.UserID, SessionID: req.SessionID}
	sink, err := newSSESink(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	defer sink.Close(r.Context())

	result, err := s.Graph.StartTurn(r.Context(), rc, req.Message, sink)
	s.finishStream(r, sink, req.ThreadID, result, err)
}

type decisionDTO struct {
	Type         string `json:"type"`
	Message      string `json:"message,omitempty"`
	EditedAction *struct {
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	} `json:"edited_action,omitempty"`
}

type chatResumeRequest struct {
	ThreadID  string        `json:"thread_id"`
	Decisions []decisionDTO `json:"decisions"`
	UserID    string        `json:"user_id"`
	SessionID string        `json:"session_id,omitempty"`
}

func (s *Server) handleChatResume(w http.ResponseWriter, r *http.Request) {
	var req chatResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.ThreadID == "" {
		writeJSONError(w, http.StatusBadRequest, errors.New("thread_id is required"))
		return
	}

	decisions, err := toDecisions(req.Decisions)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	unlock := s.threads.lock(req.ThreadID)
	defer unlock()

	rc := runtimectx.RunContext{ThreadID: req.ThreadID, UserID: req.UserID, SessionID: req.SessionID}
	sink, err := newSSESink(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	defer sink.Close(r.Context())

	result, err := s.Graph.Resume(r.Context(), rc, decisions, sink)
	s.finishStream(r, sink, req.ThreadID, result, err)
}

// finishStream emits the terminal done/error event onto sink once the
// executor call returns (spec.md §4.9: "Stream terminates on done, interrupt,
// or error" — the interrupt event itself was already emitted by the Agent
// Node mid-run via the same sink).
func (s *Server) finishStream(r *http.Request, sink *sseSink, threadID string, result executor.Result, err error) {
	if err != nil {
		_ = sink.Send(r.Context(), stream.NewError(threadID, err, ""))
		return
	}
	if result.Interrupt != nil {
		return
	}
	_ = sink.Send(r.Context(), stream.NewDone(threadID, result.State.Messages.Len(), result.State.CurrentAgent, result.State.HandoffCount))
}

func toDecisions(dtos []decisionDTO) ([]approval.Decision, error) {
	out := make([]approval.Decision, 0, len(dtos))
	for _, d := range dtos {
		switch d.Type {
		case "approve":
			out = append(out, approval.Decision{Kind: checkpoint.DecisionApprove})
		case "reject":
			out = append(out, approval.Decision{Kind: checkpoint.DecisionReject, RejectionMessage: d.Message})
		case "edit":
			if d.EditedAction == nil {
				return nil, errors.New("gateway: edit decision missing edited_action")
			}
			out = append(out, approval.Decision{
				Kind:            checkpoint.DecisionEdit,
				EditedName:      d.EditedAction.Name,
				EditedArguments: d.EditedAction.Args,
			})
		default:
			return nil, errors.New("gateway: unknown decision type " + d.Type)
		}
	}
	return out, nil
}

type stateResponse struct {
	Status       string                 `json:"status"`
	ThreadID     string                 `json:"thread_id"`
	State        state.Conversation     `json:"state"`
	NextNodes    []string               `json:"next_nodes"`
	HasInterrupt bool                   `json:"has_interrupt"`
	Interrupts   []checkpoint.Interrupt `json:"interrupts,omitempty"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	if threadID == "" {
		writeJSONError(w, http.StatusBadRequest, errors.New("thread_id is required"))
		return
	}

	cp, err := s.Graph.Store.LoadLatest(r.Context(), threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	resp := stateResponse{
		ThreadID:     threadID,
		State:        cp.State,
		HasInterrupt: cp.Interrupt != nil,
	}
	switch {
	case cp.Interrupt != nil:
		resp.Status = "suspended"
		resp.Interrupts = []checkpoint.Interrupt{*cp.Interrupt}
	case cp.State.NextStep == state.End || cp.State.NextStep == "":
		resp.Status = "completed"
	default:
		resp.Status = "running"
		resp.NextNodes = []string{string(cp.State.NextStep)}
	}

	writeJSON(w, http.StatusOK, resp)
}

type livenessResponse struct {
	Status           string `json:"status"`
	AgentInitialized bool   `json:"agent_initialized"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, livenessResponse{
		Status:           "ok",
		AgentInitialized: s.Graph != nil && len(s.Graph.Agents) > 0,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(err.Error())})
}
