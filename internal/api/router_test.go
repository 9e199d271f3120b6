package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/textfleet/internal/api/handler"
	"github.com/timmy/textfleet/internal/config"
	"github.com/timmy/textfleet/internal/domain"
	"github.com/timmy/textfleet/internal/queue"
	"github.com/timmy/textfleet/internal/repository"
	"github.com/timmy/textfleet/internal/service"
)

type fakeHistory struct {
	recs []domain.JobRecord
}

func (f *fakeHistory) List(_ context.Context, limit, offset int) ([]domain.JobRecord, error) {
	if offset >= len(f.recs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.recs) {
		end = len(f.recs)
	}
	return f.recs[offset:end], nil
}

func (f *fakeHistory) Count(context.Context) (int64, error) {
	return int64(len(f.recs)), nil
}

func (f *fakeHistory) GetByID(_ context.Context, id string) (*domain.JobRecord, error) {
	for i := range f.recs {
		if f.recs[i].ID == id {
			return &f.recs[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func newTestCoordinator(t *testing.T) *service.Coordinator {
	t.Helper()
	registry := service.NewRegistry()
	shutdown := service.NewShutdown()

	job := service.NewJob(domain.NewJob{
		JobID: "job-1", InputBucket: "b", InputKey: "inputs/job-1.txt",
		OutputPrefix: "jobs/job-1/", TasksPerWorker: 2, TerminateWhenDone: true,
	}, time.Now())
	require.NoError(t, shutdown.Admit(true, func() error { return registry.Register(job) }))

	return service.NewCoordinator(queue.NewMemoryTransport(0), registry, shutdown, nil, nil, nil, nil, service.CoordinatorConfig{})
}

func serve(r http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterStatusEndpoints(t *testing.T) {
	r := SetupRouter(newTestCoordinator(t), nil, config.ServerConfig{Mode: "test"})

	tests := []struct {
		name     string
		path     string
		wantCode int
		check    func(t *testing.T, body map[string]interface{})
	}{
		{
			name:     "health",
			path:     "/health",
			wantCode: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "ok", body["status"])
			},
		},
		{
			name:     "status",
			path:     "/api/v1/status",
			wantCode: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, true, body["shutdown_armed"])
				assert.Equal(t, false, body["terminating"])
				assert.EqualValues(t, 1, body["active_jobs"])
			},
		},
		{
			name:     "active jobs",
			path:     "/api/v1/jobs",
			wantCode: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.EqualValues(t, 1, body["total"])
				jobs := body["jobs"].([]interface{})
				require.Len(t, jobs, 1)
				assert.Equal(t, "job-1", jobs[0].(map[string]interface{})["id"])
			},
		},
		{
			name:     "one job",
			path:     "/api/v1/jobs/job-1",
			wantCode: http.StatusOK,
			check: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "job-1", body["id"])
				assert.Equal(t, string(domain.JobStateDispatching), body["state"])
				assert.EqualValues(t, 0, body["total_tasks"])
			},
		},
		{
			name:     "unknown job",
			path:     "/api/v1/jobs/nope",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "history disabled",
			path:     "/api/v1/history",
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
			if tt.check == nil {
				return
			}
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			tt.check(t, body)
		})
	}
}

func TestRouterMetrics(t *testing.T) {
	r := SetupRouter(newTestCoordinator(t), nil, config.ServerConfig{Mode: "test"})
	w := serve(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "textfleet_active_jobs")
}

func TestRouterHistory(t *testing.T) {
	history := &fakeHistory{recs: []domain.JobRecord{
		{ID: "c", State: domain.JobStateComplete, Success: true},
		{ID: "b", State: domain.JobStateEmpty},
		{ID: "a", State: domain.JobStateFailed},
	}}
	var reader handler.HistoryReader = history
	r := SetupRouter(newTestCoordinator(t), reader, config.ServerConfig{Mode: "test"})

	w := serve(r, http.MethodGet, "/api/v1/history?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Jobs  []domain.JobRecord `json:"jobs"`
		Total int64              `json:"total"`
		Limit int                `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Jobs, 2)
	assert.Equal(t, "c", page.Jobs[0].ID)

	w = serve(r, http.MethodGet, "/api/v1/history/b", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec domain.JobRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, domain.JobStateEmpty, rec.State)

	w = serve(r, http.MethodGet, "/api/v1/history/zzz", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterRequestIDPropagation(t *testing.T) {
	r := SetupRouter(newTestCoordinator(t), nil, config.ServerConfig{Mode: "test"})
	w := serve(r, http.MethodGet, "/health", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestRouterCORS(t *testing.T) {
	tests := []struct {
		name       string
		cors       config.CORSConfig
		origin     string
		wantOrigin string
	}{
		{name: "allow all", cors: config.CORSConfig{AllowAllOrigins: true}, origin: "http://x", wantOrigin: "*"},
		{name: "listed origin", cors: config.CORSConfig{AllowedOrigins: []string{"http://ui"}}, origin: "http://ui", wantOrigin: "http://ui"},
		{name: "unlisted origin", cors: config.CORSConfig{AllowedOrigins: []string{"http://ui"}}, origin: "http://evil", wantOrigin: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SetupRouter(newTestCoordinator(t), nil, config.ServerConfig{Mode: "test", CORS: tt.cors})
			w := serve(r, http.MethodOptions, "/api/v1/status", map[string]string{"Origin": tt.origin})
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, http.StatusNoContent, w.Code)
			}
		})
	}
}
