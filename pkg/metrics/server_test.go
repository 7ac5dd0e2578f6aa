package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	server := NewServer(":0", reg, nil) // :0 lets OS pick available port

	require.NotNil(t, server)
	require.NotNil(t, server.httpServer)
	require.Equal(t, ":0", server.httpServer.Addr)
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServer_StartAndShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	server := NewServer("127.0.0.1:0", reg, nil)
	errCh := server.Start()

	// Give server time to start
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			require.NoError(t, err)
		}
	case <-time.After(time.Second):
		t.Fatal("server goroutine did not exit after shutdown")
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SetQueues(2)
	m.RecordEnqueue("buffered")
	m.IncError(ErrTypeConsumerPanic)

	code, body := get(t, newMux(reg, nil), "/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "multiqueue_dispatcher_queues")
	require.Contains(t, body, "multiqueue_queue_enqueued_total")
	require.Contains(t, body, "multiqueue_errors_total")
}

func TestServer_HealthEndpoint(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	mux := newMux(prometheus.NewRegistry(), running.Load)

	code, body := get(t, mux, "/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)

	running.Store(false)
	code, body = get(t, mux, "/health")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "stopped", body)
}

func TestServer_HealthEndpointNilFunc(t *testing.T) {
	code, body := get(t, newMux(prometheus.NewRegistry(), nil), "/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body)
}
