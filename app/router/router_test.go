package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mteval/app/handler"
	"mteval/internal/model"
	"mteval/internal/service"
	"mteval/pkg/constants"
	"mteval/pkg/metrics"
	"mteval/pkg/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "token"

type apiFixture struct {
	engine *gin.Engine
	store  *memory.Store
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	ns := store.AddNamespace("default")
	store.AddNamespace("other")
	ds := store.AddDataset(ns.ID, "en", "cs", []model.Segment{
		{Src: "Hello", Ref: strPtr("Ahoj")},
		{Src: "Bye", Ref: strPtr("Nashle")},
	})
	_, err := store.AddRun(ds, []string{"Ahoj", "Cau"})
	require.NoError(t, err)

	collector := metrics.NewCollector()
	jobService := service.NewJobService(store, collector)
	workerService := service.NewWorkerService(store, jobService, collector)
	resultService := service.NewResultService(store, collector)

	engine := gin.New()
	NewRouter(
		handler.NewWorkerHandler(workerService),
		handler.NewJobHandler(jobService, resultService),
		WithAPIKey(testToken),
		WithMetrics("/metrics", collector.Handler()),
	).Setup(engine)

	return &apiFixture{engine: engine, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) register(t *testing.T, metric string) model.RegisterResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/namespaces/default/workers/register",
		model.RegisterRequest{Metric: metric, MetricRequiresReferences: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp model.RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (f *apiFixture) assign(t *testing.T, workerID int64) []model.JobInfo {
	t.Helper()
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/namespaces/default/workers/%d/jobs/assign", workerID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var jobs []model.JobInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	return jobs
}

func TestWorkerFlow(t *testing.T) {
	f := newFixture(t)

	reg := f.register(t, "bleu")
	assert.Equal(t, 1, reg.NumJobs)

	rec := f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/namespaces/default/workers/%d/heartbeat", reg.WorkerID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	jobs := f.assign(t, reg.WorkerID)
	require.Len(t, jobs, 1)
	job := jobs[0]
	assert.Equal(t, "bleu", job.Metric)
	assert.Equal(t, constants.JobStatusRunning, job.Status)
	assert.Equal(t, "en", job.SourceLang)
	assert.Equal(t, "cs", job.TargetLang)
	require.Len(t, job.Segments, 2)
	assert.Equal(t, "Cau", job.Segments[1].Tgt)
	assert.NotNil(t, job.Payload)

	result := model.JobResultRequest{
		JobID:               job.ID,
		DatasetLevelMetrics: []model.DatasetMetric{{Name: "bleu", HigherIsBetter: true, Score: 45.2}},
		SegmentLevelMetrics: []model.SegmentMetric{{Name: "bleu", HigherIsBetter: true, Scores: []float64{100, 0}}},
	}
	reportPath := fmt.Sprintf("/api/v1/namespaces/default/workers/%d/jobs/%d/report_result", reg.WorkerID, job.ID)
	rec = f.do(t, http.MethodPost, reportPath, result)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, f.store.MetricRows(job.ID), 3)

	// a second report is rejected since the job is no longer held
	rec = f.do(t, http.MethodPost, reportPath, result)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "job not assigned to this worker")

	assert.Empty(t, f.assign(t, reg.WorkerID))

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/namespaces/default/jobs/%d", job.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, constants.JobStatusCompleted, stored.Status)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/namespaces/default/workers/%d", reg.WorkerID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var w model.Worker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
	assert.Equal(t, constants.WorkerStatusWaiting, w.Status)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/namespaces/default/workers/%d/unregister", reg.WorkerID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/namespaces/default/workers/%d/heartbeat", reg.WorkerID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReportResult_ForeignWorker(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "bleu")
	other := f.register(t, "bleu")

	jobs := f.assign(t, owner.WorkerID)
	require.Len(t, jobs, 1)

	rec := f.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/namespaces/default/workers/%d/jobs/%d/report_result", other.WorkerID, jobs[0].ID),
		model.JobResultRequest{JobID: jobs[0].ID, DatasetLevelMetrics: []model.DatasetMetric{{Name: "bleu", Score: 1}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.store.MetricRows(jobs[0].ID))
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	reg := f.register(t, "chrf")

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown namespace", http.MethodPost, "/api/v1/namespaces/nope/workers/register", model.RegisterRequest{Metric: "bleu"}, http.StatusNotFound},
		{"missing metric", http.MethodPost, "/api/v1/namespaces/default/workers/register", map[string]string{}, http.StatusBadRequest},
		{"unknown user", http.MethodPost, "/api/v1/namespaces/default/workers/register", model.RegisterRequest{Metric: "bleu", Username: strPtr("mallory")}, http.StatusNotFound},
		{"non-numeric worker id", http.MethodPut, "/api/v1/namespaces/default/workers/abc/heartbeat", nil, http.StatusBadRequest},
		{"unknown worker", http.MethodPut, "/api/v1/namespaces/default/workers/9999/heartbeat", nil, http.StatusNotFound},
		{"worker in other namespace", http.MethodPost, fmt.Sprintf("/api/v1/namespaces/other/workers/%d/jobs/assign", reg.WorkerID), nil, http.StatusNotFound},
		{"unknown job", http.MethodGet, "/api/v1/namespaces/default/jobs/9999", nil, http.StatusNotFound},
		{"job id mismatch", http.MethodPost, fmt.Sprintf("/api/v1/namespaces/default/workers/%d/jobs/1/report_result", reg.WorkerID), model.JobResultRequest{JobID: 2}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/namespaces/default/workers/register", nil)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.register(t, "bleu")

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mteval_workers_registered_total{metric="bleu"} 1`)
}
