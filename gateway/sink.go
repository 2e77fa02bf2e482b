package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hhyun1051/teamh-orchestrator/stream"
)

// sseSink adapts an http.ResponseWriter into a stream.Sink (spec.md §6.1:
// "Response: text/event-stream, each event a line data: <json>\n\n"),
// grounded on the teacher's generated Goa HTTP transport SSE framing
// convention, reimplemented by hand since no goa codegen runs here.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("gateway: response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseSink{w: w, flusher: flusher}, nil
}

// envelope wraps an event's type alongside its payload, matching spec.md
// §4.9's event shapes: the client reads "type" to discriminate before
// decoding the rest.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (s *sseSink) Send(_ context.Context, event stream.Event) error {
	encoded, err := json.Marshal(envelope{Type: string(event.Type()), Payload: event.Payload()})
	if err != nil {
		return fmt.Errorf("gateway: encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", encoded); err != nil {
		return fmt.Errorf("gateway: write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Close(context.Context) error { return nil }
