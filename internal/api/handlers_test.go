package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/market-scout/internal/jobs"
	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/queue"
)

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) Submit(ctx context.Context, keyword string) (*models.Run, error) {
	args := m.Called(ctx, keyword)
	run, _ := args.Get(0).(*models.Run)
	return run, args.Error(1)
}

func (m *MockJobService) Get(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*models.Run)
	return run, args.Error(1)
}

func (m *MockJobService) List(ctx context.Context, limit int) ([]*models.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]*models.Run)
	return runs, args.Error(1)
}

func (m *MockJobService) QueueSize() int {
	return m.Called().Int(0)
}

type MockOutbox struct {
	mock.Mock
}

func (m *MockOutbox) Counts(ctx context.Context) (int64, int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Get(1).(int64), args.Error(2)
}

func newTestServer(svc JobService, outbox OutboxStats) http.Handler {
	h := NewHandlers(svc, outbox, slog.Default())
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	return NewRouter(h, metricsHandler, RouterConfig{})
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCreateAnalysis(t *testing.T) {
	svc := new(MockJobService)
	svc.On("Submit", mock.Anything, "yoga mat").
		Return(&models.Run{ID: "run-1", Keyword: "yoga mat", Status: models.RunPending}, nil)

	rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/v1/analyses", `{"keyword":"yoga mat"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp CreateAnalysisResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, models.RunPending, resp.Status)
	svc.AssertExpectations(t)
}

func TestCreateAnalysisErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"empty keyword", `{"keyword":""}`, jobs.ErrInvalidKeyword, http.StatusBadRequest},
		{"queue full", `{"keyword":"mat"}`, queue.ErrQueueFull, http.StatusServiceUnavailable},
		{"store failure", `{"keyword":"mat"}`, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockJobService)
			if tt.submitErr != nil {
				svc.On("Submit", mock.Anything, mock.Anything).Return(nil, tt.submitErr)
			}

			rec := do(t, newTestServer(svc, nil), http.MethodPost, "/api/v1/analyses", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestGetAnalysis(t *testing.T) {
	done := time.Now()
	svc := new(MockJobService)
	svc.On("Get", mock.Anything, "run-1").Return(&models.Run{
		ID:          "run-1",
		Keyword:     "yoga mat",
		Status:      models.RunCompleted,
		Report:      &models.AnalysisReport{Keyword: "yoga mat", Recommendation: models.HighPotential},
		CompletedAt: &done,
	}, nil)
	svc.On("Get", mock.Anything, "missing").Return(nil, models.ErrRunNotFound)

	srv := newTestServer(svc, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/analyses/run-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "High Potential")

	rec = do(t, srv, http.MethodGet, "/api/v1/analyses/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAnalyses(t *testing.T) {
	svc := new(MockJobService)
	svc.On("List", mock.Anything, 2).Return([]*models.Run{
		{ID: "b", Keyword: "b", Status: models.RunRunning},
		{ID: "a", Keyword: "a", Status: models.RunCompleted},
	}, nil)
	svc.On("List", mock.Anything, defaultListLimit).Return(nil, nil)
	svc.On("QueueSize").Return(3)

	srv := newTestServer(svc, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/analyses?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListAnalysesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 3, resp.QueueSize)
	assert.Equal(t, "b", resp.Runs[0].ID)

	rec = do(t, srv, http.MethodGet, "/api/v1/analyses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"runs":[]`)

	rec = do(t, srv, http.MethodGet, "/api/v1/analyses?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pending    int64
		deadLetter int64
		countErr   error
		wantStatus int
		wantState  string
	}{
		{"ok", 3, 0, nil, http.StatusOK, "ok"},
		{"backlog", 1500, 0, nil, http.StatusOK, "warning"},
		{"dead letters", 0, 150, nil, http.StatusServiceUnavailable, "error"},
		{"db down", 0, 0, errors.New("connection refused"), http.StatusOK, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockJobService)
			svc.On("QueueSize").Return(0)
			outbox := new(MockOutbox)
			outbox.On("Counts", mock.Anything).Return(tt.pending, tt.deadLetter, tt.countErr)

			rec := do(t, newTestServer(svc, outbox), http.MethodGet, "/health", "")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body["status"])
		})
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	svc := new(MockJobService)
	svc.On("QueueSize").Return(1)

	rec := do(t, newTestServer(svc, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "outbox")
}

func TestMetricsRoute(t *testing.T) {
	rec := do(t, newTestServer(new(MockJobService), nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}
