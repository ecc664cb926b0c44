package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/smartcard-provisioning-worker/api"
	"github.com/ruteri/smartcard-provisioning-worker/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	ready  bool
	status worker.Status
}

func (f *fakeStatus) Ready() bool           { return f.ready }
func (f *fakeStatus) Status() worker.Status { return f.status }

func newTestServer(t *testing.T, status StatusSource, registrars ...RouteRegistrar) *Server {
	t.Helper()
	srv, err := New(&api.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		GracefulShutdownDuration: time.Second,
	}, status, registrars...)
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	status := &fakeStatus{}
	srv := newTestServer(t, status)

	tests := []struct {
		name       string
		path       string
		ready      bool
		wantStatus int
	}{
		{"liveness before registration", "/livez", false, http.StatusOK},
		{"readiness before registration", "/readyz", false, http.StatusServiceUnavailable},
		{"readiness after registration", "/readyz", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status.ready = tt.ready
			rr := get(t, srv.Handler(), tt.path)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestReadinessDropsOnShutdown(t *testing.T) {
	srv := newTestServer(t, &fakeStatus{ready: true})
	require.Equal(t, http.StatusOK, get(t, srv.Handler(), "/readyz").Code)

	srv.Shutdown()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/readyz").Code)
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeStatus{ready: true, status: worker.Status{
		WorkerID:      "YubiBridge",
		Registered:    true,
		Busy:          true,
		CurrentJobID:  "job-2",
		Stage:         "GenerateKey",
		LastJobID:     "job-1",
		LastOutcome:   "NoTokenFound",
		JobsSucceeded: 3,
		JobsFailed:    1,
	}})

	rr := get(t, srv.Handler(), "/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "YubiBridge", got["worker_id"])
	assert.Equal(t, true, got["busy"])
	assert.Equal(t, "GenerateKey", got["stage"])
	assert.Equal(t, "NoTokenFound", got["last_outcome"])
	assert.EqualValues(t, 3, got["jobs_succeeded"])
	assert.EqualValues(t, 1, got["jobs_failed"])
}

func TestWithoutStatusSource(t *testing.T) {
	srv := newTestServer(t, nil)
	assert.Equal(t, http.StatusOK, get(t, srv.Handler(), "/readyz").Code)
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/status").Code)
}

func TestExtraRoutes(t *testing.T) {
	srv := newTestServer(t, nil, func(r chi.Router) {
		r.Get("/api/v1/ping", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	})
	assert.Equal(t, http.StatusTeapot, get(t, srv.Handler(), "/api/v1/ping").Code)
}

func TestPprofDisabledByDefault(t *testing.T) {
	srv := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, get(t, srv.Handler(), "/debug/pprof/").Code)
}
