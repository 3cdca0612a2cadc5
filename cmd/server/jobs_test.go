package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mteval/internal/model"
	"mteval/internal/service"
	"mteval/pkg/config"
	"mteval/pkg/constants"
	"mteval/pkg/logger"
	"mteval/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaperJob_SweepsAndLogsOnce(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, logger.Setup(config.LoggerConfig{Level: "info", Output: "file", File: config.LoggerFileConfig{Path: logPath}}))

	ctx := context.Background()
	store := memory.New()
	ns := store.AddNamespace("default")
	ds := store.AddDataset(ns.ID, "en", "cs", []model.Segment{{Src: "Hello"}})
	_, err := store.AddRun(ds, []string{"Ahoj"})
	require.NoError(t, err)

	w := &model.Worker{NamespaceID: ns.ID, Namespace: ns.Name, Metric: "chrf", Status: constants.WorkerStatusWaiting}
	require.NoError(t, store.CreateWorker(ctx, w))
	_, err = store.CreateMissingJobs(ctx, model.TemplateFor(w))
	require.NoError(t, err)
	job, err := store.ClaimNextJob(ctx, w)
	require.NoError(t, err)
	require.NotNil(t, job)

	time.Sleep(5 * time.Millisecond)
	j := newReaperJob(time.Minute, service.NewReaper(store, time.Millisecond, nil))
	assert.Equal(t, "worker-reaper", j.Name())
	require.NoError(t, j.Run(ctx))
	_ = logger.Sync()

	got, err := store.GetJob(ctx, "default", job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, got.Status)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "reaper sweep done"))
}

func TestReaperJob_NotConfigured(t *testing.T) {
	j := newReaperJob(time.Minute, nil)
	assert.Error(t, j.Run(context.Background()))
}
