package mysql

import (
	"testing"

	"mteval/internal/model"
	"mteval/pkg/config"
	"mteval/pkg/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MySQLConfig
		want string
	}{
		{
			name: "explicit port",
			cfg:  config.MySQLConfig{Host: "db", Port: 3307, User: "eval", Password: "pw", Database: "mteval"},
			want: "eval:pw@tcp(db:3307)/mteval?charset=utf8mb4&parseTime=True&loc=UTC",
		},
		{
			name: "default port",
			cfg:  config.MySQLConfig{Host: "localhost", User: "root", Database: "mteval"},
			want: "root:@tcp(localhost:3306)/mteval?charset=utf8mb4&parseTime=True&loc=UTC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildDSN(tt.cfg))
		})
	}
}

func TestWorkerConversionRoundTrip(t *testing.T) {
	userID := int64(7)
	w := &model.Worker{
		ID: 3, NamespaceID: 1, Namespace: "default", UserID: &userID,
		Metric: "bleu", MetricRequiresReferences: true, Queue: "gpu",
		Status: constants.WorkerStatusWorking, LastHeartbeat: 1700000000.5,
	}
	got := ToWorkerDomain(FromWorkerDomain(w), "default")
	assert.Equal(t, w, got)
	assert.Nil(t, ToWorkerDomain(nil, ""))
	assert.Nil(t, FromWorkerDomain(nil))
}

func TestNewPendingJob_DefaultsQueue(t *testing.T) {
	job := NewPendingJob(model.JobTemplate{NamespaceID: 1, Metric: "chrf"}, 42)
	assert.Equal(t, constants.DefaultQueue, job.Queue)
	assert.Equal(t, string(constants.JobStatusPending), job.Status)
	assert.Equal(t, int64(42), job.RunID)
	assert.Nil(t, job.WorkerID)

	domain := ToJobDomain(&Job{ID: 1, Status: "RUNNING"})
	assert.Equal(t, constants.JobStatusRunning, domain.Status)
	assert.NotNil(t, domain.Payload)
}

func TestFromJobResult(t *testing.T) {
	job := &Job{ID: 5, RunID: 9}
	result := &model.JobResultRequest{
		JobID:               5,
		DatasetLevelMetrics: []model.DatasetMetric{{Name: "bleu", HigherIsBetter: true, Score: 31.2}},
		SegmentLevelMetrics: []model.SegmentMetric{
			{Name: "bleu", HigherIsBetter: true, Scores: []float64{30, 32}},
			{Name: "ter", Scores: []float64{0.5}, Custom: []map[string]interface{}{{"edits": 3}}},
		},
	}

	datasetRows, segmentRows := FromJobResult(job, result)
	require.Len(t, datasetRows, 1)
	assert.Equal(t, int64(9), datasetRows[0].RunID)
	require.Len(t, segmentRows, 3)
	assert.Equal(t, 1, segmentRows[1].SegmentIndex)
	assert.Equal(t, 32.0, segmentRows[1].Score)
	assert.Nil(t, segmentRows[1].Custom)
	assert.Equal(t, "ter", segmentRows[2].Name)
	assert.Equal(t, 0, segmentRows[2].SegmentIndex)
	assert.Equal(t, JSONMap{"edits": 3}, segmentRows[2].Custom)
}

func TestDistinctTemplates(t *testing.T) {
	rows := []*Worker{
		{ID: 1, NamespaceID: 1, Metric: "chrf", Queue: "default", Status: "WAITING"},
		{ID: 2, NamespaceID: 1, Metric: "chrf", Queue: "other", Status: "WORKING"},
		{ID: 3, NamespaceID: 1, Metric: "chrf", MetricRequiresReferences: true, Status: "WAITING"},
	}
	got := distinctTemplates(rows)
	require.Len(t, got, 2)
	assert.Equal(t, "default", got[0].Queue)
	assert.True(t, got[1].RequiresReferences)
}

func TestJSONMapScan(t *testing.T) {
	var m JSONMap
	require.NoError(t, m.Scan([]byte(`{"a":1}`)))
	assert.Equal(t, 1.0, m["a"])
	require.NoError(t, m.Scan(`{"b":"x"}`))
	assert.Equal(t, "x", m["b"])
	require.NoError(t, m.Scan(nil))
	assert.Nil(t, m)
	assert.Error(t, m.Scan(42))

	v, err := JSONMap(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
