package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"mteval/internal/model"
	"mteval/pkg/constants"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_ConcurrentClaimsNeverShareAJob checks that however many workers race for
// however many pending jobs, every job ends up with at most one assignee and no worker is
// handed the same job twice.
func TestProperty_ConcurrentClaimsNeverShareAJob(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("each job is claimed by at most one worker", prop.ForAll(
		func(numRuns, numWorkers int) bool {
			s := New()
			ctx := context.Background()
			ns := s.AddNamespace("default")
			ds := s.AddDataset(ns.ID, "en", "cs", []model.Segment{{Src: "a"}})
			for i := 0; i < numRuns; i++ {
				if _, err := s.AddRun(ds, []string{fmt.Sprintf("t%d", i)}); err != nil {
					return false
				}
			}

			workers := make([]*model.Worker, numWorkers)
			for i := range workers {
				workers[i] = &model.Worker{NamespaceID: ns.ID, Metric: "chrf", Status: constants.WorkerStatusWaiting}
				if err := s.CreateWorker(ctx, workers[i]); err != nil {
					return false
				}
			}
			if _, err := s.CreateMissingJobs(ctx, model.TemplateFor(workers[0])); err != nil {
				return false
			}

			var mu sync.Mutex
			claimedBy := make(map[int64]int64)
			duplicate := false
			var wg sync.WaitGroup
			for _, w := range workers {
				wg.Add(1)
				go func(w *model.Worker) {
					defer wg.Done()
					for {
						job, err := s.ClaimNextJob(ctx, w)
						if err != nil || job == nil {
							return
						}
						mu.Lock()
						if _, seen := claimedBy[job.ID]; seen {
							duplicate = true
						}
						claimedBy[job.ID] = w.ID
						mu.Unlock()
					}
				}(w)
			}
			wg.Wait()

			if duplicate || len(claimedBy) != numRuns {
				return false
			}
			for _, j := range s.Jobs() {
				if j.WorkerID == nil || *j.WorkerID != claimedBy[j.ID] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 30),
		gen.IntRange(1, 8),
	))

	properties.Property("release after claim restores every job to pending", prop.ForAll(
		func(numRuns int) bool {
			s := New()
			ctx := context.Background()
			ns := s.AddNamespace("default")
			ds := s.AddDataset(ns.ID, "en", "cs", []model.Segment{{Src: "a"}})
			for i := 0; i < numRuns; i++ {
				if _, err := s.AddRun(ds, []string{"t"}); err != nil {
					return false
				}
			}
			w := &model.Worker{NamespaceID: ns.ID, Metric: "chrf", Status: constants.WorkerStatusWaiting}
			if err := s.CreateWorker(ctx, w); err != nil {
				return false
			}
			if _, err := s.CreateMissingJobs(ctx, model.TemplateFor(w)); err != nil {
				return false
			}
			for {
				job, err := s.ClaimNextJob(ctx, w)
				if err != nil {
					return false
				}
				if job == nil {
					break
				}
			}
			released, err := s.ReleaseJobsOfWorkers(ctx, []int64{w.ID})
			if err != nil || released != int64(numRuns) {
				return false
			}
			for _, j := range s.Jobs() {
				if j.Status != constants.JobStatusPending || j.WorkerID != nil {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
