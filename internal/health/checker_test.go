package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubBroker struct{ connected bool }

func (s stubBroker) Connected() bool { return s.connected }

func TestCheckBackendUp(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BackendURL: srv.URL}, nil, nil)
	require.True(t, c.CheckBackend(context.Background()))
	require.Equal(t, "/actuator/health", gotPath)

	backend, broker := c.Status()
	require.True(t, backend)
	require.False(t, broker)
}

func TestCheckBackendDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BackendURL: srv.URL, Timeout: time.Second}, nil, nil)
	require.False(t, c.CheckBackend(context.Background()))
}

func TestCheckBackendUnconfigured(t *testing.T) {
	t.Parallel()

	c := New(Config{}, nil, nil)
	require.False(t, c.CheckBackend(context.Background()))
}

func TestModeDerivation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name       string
		backendURL string
		broker     BrokerStatus
		want       string
	}{
		{"both reachable", srv.URL, stubBroker{connected: true}, ModeIntegrated},
		{"broker only", "", stubBroker{connected: true}, ModeQueueOnly},
		{"backend only", srv.URL, stubBroker{connected: false}, ModeStandalone},
		{"neither", "", nil, ModeStandalone},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := New(Config{BackendURL: tt.backendURL}, tt.broker, nil)
			c.CheckBackend(context.Background())
			require.Equal(t, tt.want, c.Mode())
		})
	}
}
