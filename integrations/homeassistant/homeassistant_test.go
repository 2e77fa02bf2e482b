package homeassistant_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhyun1051/teamh-orchestrator/integrations/homeassistant"
)

func TestCallServiceSendsBearerTokenAndMergesEntityID(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := homeassistant.New(srv.URL, "secret-token")
	err := client.CallService(context.Background(), "switch", "turn_on", "switch.geosil", nil)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "/api/services/switch/turn_on", gotPath)
	assert.Equal(t, "switch.geosil", gotBody["entity_id"])
}

func TestGetStateDecodesEntity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entity_id":"switch.geosil","state":"on","attributes":{},"last_changed":"t1","last_updated":"t2"}`))
	}))
	defer srv.Close()

	client := homeassistant.New(srv.URL, "tok")
	entity, err := client.GetState(context.Background(), "switch.geosil")
	require.NoError(t, err)
	assert.Equal(t, "on", entity.State)

	on, err := client.IsOn(context.Background(), "switch.geosil")
	require.NoError(t, err)
	assert.True(t, on)
}

func TestCallServiceReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`boom`))
	}))
	defer srv.Close()

	client := homeassistant.New(srv.URL, "tok")
	err := client.CallService(context.Background(), "switch", "turn_on", "switch.geosil", nil)
	assert.Error(t, err)
}
