package calendar_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhyun1051/teamh-orchestrator/integrations/calendar"
)

func TestCreateEventRoundTrips(t *testing.T) {
	start := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/events", r.URL.Path)
		var got calendar.Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		got.ID = "evt-1"
		_ = json.NewEncoder(w).Encode(got)
	}))
	defer srv.Close()

	client := calendar.New(srv.URL, "tok")
	created, err := client.CreateEvent(context.Background(), calendar.Event{Summary: "Standup", Start: start, End: end})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", created.ID)
	assert.Equal(t, "Standup", created.Summary)
}

func TestDeleteEventReturnsErrorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := calendar.New(srv.URL, "tok")
	err := client.DeleteEvent(context.Background(), "missing")
	assert.Error(t, err)
}

func TestListEventsEncodesRange(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := calendar.New(srv.URL, "tok")
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	events, err := client.ListEvents(context.Background(), from, to)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Contains(t, gotQuery, "from=2026-08-01T00%3A00%3A00Z")
}
