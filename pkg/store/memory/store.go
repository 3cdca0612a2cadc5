// Package memory implements the scheduler store in process memory.
//
// Every operation runs under a single mutex, which gives ClaimNextJob and CompleteJob the same
// atomic read-modify-write behavior the MySQL store gets from row locks. It backs local runs
// (store.driver: memory) and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mteval/internal/model"
	"mteval/pkg/constants"
	"mteval/pkg/interfaces"
)

var _ interfaces.Store = (*Store)(nil)

type dataset struct {
	id           int64
	namespaceID  int64
	sourceLang   string
	targetLang   string
	segments     []model.Segment
	hasReference bool
}

type run struct {
	id           int64
	namespaceID  int64
	datasetID    int64
	translations []string
	createdAt    time.Time
}

// Store in-memory implementation of interfaces.Store
type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	namespaces map[int64]*model.Namespace
	users      map[int64]*model.User
	datasets   map[int64]*dataset
	runs       map[int64]*run
	workers    map[int64]*model.Worker
	jobs       map[int64]*model.Job
	metrics    []model.MetricRow
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for created_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		namespaces: make(map[int64]*model.Namespace),
		users:      make(map[int64]*model.User),
		datasets:   make(map[int64]*dataset),
		runs:       make(map[int64]*run),
		workers:    make(map[int64]*model.Worker),
		jobs:       make(map[int64]*model.Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

// AddNamespace creates a namespace
func (s *Store) AddNamespace(name string) *model.Namespace {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := &model.Namespace{ID: s.nextID(), Name: name}
	s.namespaces[ns.ID] = ns
	return ns
}

// AddUser creates a user
func (s *Store) AddUser(username string) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &model.User{ID: s.nextID(), Username: username}
	s.users[u.ID] = u
	return u
}

// AddDataset creates a dataset; Tgt of the segments is ignored.
// The dataset has references when every segment carries a non-empty one.
func (s *Store) AddDataset(namespaceID int64, sourceLang, targetLang string, segments []model.Segment) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	hasRef := len(segments) > 0
	for _, seg := range segments {
		if seg.Ref == nil || *seg.Ref == "" {
			hasRef = false
		}
	}
	ds := &dataset{
		id:           s.nextID(),
		namespaceID:  namespaceID,
		sourceLang:   sourceLang,
		targetLang:   targetLang,
		segments:     append([]model.Segment(nil), segments...),
		hasReference: hasRef,
	}
	s.datasets[ds.id] = ds
	return ds.id
}

// AddRun creates a translation run over a dataset, one translation per segment
func (s *Store) AddRun(datasetID int64, translations []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.datasets[datasetID]
	if !ok {
		return 0, fmt.Errorf("%w: dataset %d", model.ErrNotFound, datasetID)
	}
	if len(translations) != len(ds.segments) {
		return 0, fmt.Errorf("%w: %d translations for %d segments", model.ErrInvalidRequest, len(translations), len(ds.segments))
	}
	r := &run{
		id:           s.nextID(),
		namespaceID:  ds.namespaceID,
		datasetID:    datasetID,
		translations: append([]string(nil), translations...),
		createdAt:    s.now(),
	}
	s.runs[r.id] = r
	return r.id, nil
}

// Jobs returns a snapshot of all jobs ordered by id
func (s *Store) Jobs() []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, copyJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// MetricRows returns the metric rows persisted for a job
func (s *Store) MetricRows(jobID int64) []model.MetricRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MetricRow
	for _, m := range s.metrics {
		if m.JobID == jobID {
			out = append(out, m)
		}
	}
	return out
}

// SetJobPriority changes the priority of a job
func (s *Store) SetJobPriority(jobID int64, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok {
		j.Priority = priority
	}
}

// ---- CatalogRepository ----

func (s *Store) GetNamespace(ctx context.Context, name string) (*model.Namespace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.namespaceByName(name)
	if ns == nil {
		return nil, fmt.Errorf("%w: namespace %q", model.ErrNotFound, name)
	}
	out := *ns
	return &out, nil
}

func (s *Store) namespaceByName(name string) *model.Namespace {
	for _, ns := range s.namespaces {
		if ns.Name == name {
			return ns
		}
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			out := *u
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: user %q", model.ErrNotFound, username)
}

func (s *Store) GetRunWork(ctx context.Context, runID int64) (*model.RunWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %d", model.ErrNotFound, runID)
	}
	ds := s.datasets[r.datasetID]
	work := &model.RunWork{
		RunID:        r.id,
		NamespaceID:  r.namespaceID,
		SourceLang:   ds.sourceLang,
		TargetLang:   ds.targetLang,
		HasReference: ds.hasReference,
		Segments:     make([]model.Segment, len(ds.segments)),
	}
	for i, seg := range ds.segments {
		work.Segments[i] = model.Segment{Src: seg.Src, Tgt: r.translations[i], Ref: seg.Ref}
	}
	return work, nil
}

// ---- WorkerRepository ----

func (s *Store) CreateWorker(ctx context.Context, w *model.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	w.ID = s.nextID()
	w.CreatedAt = now
	w.UpdatedAt = now
	stored := *w
	s.workers[w.ID] = &stored
	return nil
}

func (s *Store) GetWorker(ctx context.Context, namespace string, workerID int64) (*model.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.workerInNamespace(namespace, workerID)
	if err != nil {
		return nil, err
	}
	out := *w
	return &out, nil
}

func (s *Store) workerInNamespace(namespace string, workerID int64) (*model.Worker, error) {
	w, ok := s.workers[workerID]
	if !ok {
		return nil, fmt.Errorf("%w: worker %d", model.ErrNotFound, workerID)
	}
	ns := s.namespaceByName(namespace)
	if ns == nil || ns.ID != w.NamespaceID {
		return nil, fmt.Errorf("%w: worker %d in namespace %q", model.ErrNotFound, workerID, namespace)
	}
	return w, nil
}

func (s *Store) UpdateHeartbeat(ctx context.Context, namespace string, workerID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := s.workerInNamespace(namespace, workerID)
	if err != nil {
		return err
	}
	w.LastHeartbeat = unixSeconds(at)
	w.UpdatedAt = s.now()
	return nil
}

func (s *Store) UpdateWorkerStatus(ctx context.Context, workerID int64, from []constants.WorkerStatus, to constants.WorkerStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok {
		return false, fmt.Errorf("%w: worker %d", model.ErrNotFound, workerID)
	}
	if !containsStatus(from, w.Status) {
		return false, nil
	}
	w.Status = to
	w.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) TimeOutWorker(ctx context.Context, workerID int64, threshold time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[workerID]
	if !ok || !w.Status.IsActive() {
		return false, nil
	}
	if w.LastHeartbeat >= unixSeconds(threshold) || !w.CreatedAt.Before(threshold) {
		return false, nil
	}
	w.Status = constants.WorkerStatusTimedOut
	w.UpdatedAt = s.now()
	return true, nil
}

func (s *Store) ListExpiredWorkers(ctx context.Context, threshold time.Time) ([]*model.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := unixSeconds(threshold)
	var out []*model.Worker
	for _, w := range s.workers {
		if !w.Status.IsActive() {
			continue
		}
		if w.LastHeartbeat < cutoff && w.CreatedAt.Before(threshold) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *Store) ListActiveCapabilities(ctx context.Context, namespaceID int64) ([]model.JobTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type key struct {
		metric string
		refs   bool
	}
	seen := make(map[key]bool)
	var out []model.JobTemplate
	ids := make([]int64, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	for _, id := range ids {
		w := s.workers[id]
		if w.NamespaceID != namespaceID || !w.Status.IsActive() {
			continue
		}
		k := key{w.Metric, w.MetricRequiresReferences}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, model.TemplateFor(w))
	}
	return out, nil
}

// ---- JobRepository ----

func (s *Store) CreateMissingJobs(ctx context.Context, tmpl model.JobTemplate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	runIDs := make([]int64, 0)
	for id, r := range s.runs {
		if r.namespaceID == tmpl.NamespaceID {
			runIDs = append(runIDs, id)
		}
	}
	sort.Slice(runIDs, func(a, b int) bool { return runIDs[a] < runIDs[b] })

	created := 0
	for _, runID := range runIDs {
		if s.insertJobLocked(tmpl, runID) {
			created++
		}
	}
	return created, nil
}

func (s *Store) CreateJobForRun(ctx context.Context, tmpl model.JobTemplate, runID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return false, fmt.Errorf("%w: run %d", model.ErrNotFound, runID)
	}
	if r.namespaceID != tmpl.NamespaceID {
		return false, nil
	}
	return s.insertJobLocked(tmpl, runID), nil
}

// insertJobLocked enforces the (run, metric) uniqueness the MySQL index provides
func (s *Store) insertJobLocked(tmpl model.JobTemplate, runID int64) bool {
	r := s.runs[runID]
	if tmpl.RequiresReferences && !s.datasets[r.datasetID].hasReference {
		return false
	}
	for _, j := range s.jobs {
		if j.RunID == runID && j.Metric == tmpl.Metric {
			return false
		}
	}
	queue := tmpl.Queue
	if queue == "" {
		queue = constants.DefaultQueue
	}
	now := s.now()
	job := &model.Job{
		ID:          s.nextID(),
		NamespaceID: tmpl.NamespaceID,
		UserID:      tmpl.UserID,
		RunID:       runID,
		Queue:       queue,
		Priority:    tmpl.Priority,
		Status:      constants.JobStatusPending,
		Metric:      tmpl.Metric,
		Payload:     map[string]interface{}{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	return true
}

func (s *Store) ClaimNextJob(ctx context.Context, w *model.Worker) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var candidates []*model.Job
	for _, j := range s.jobs {
		if j.NamespaceID != w.NamespaceID || j.Status != constants.JobStatusPending || j.WorkerID != nil || j.Metric != w.Metric {
			continue
		}
		if w.MetricRequiresReferences {
			r := s.runs[j.RunID]
			if r == nil || !s.datasets[r.datasetID].hasReference {
				continue
			}
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(a, b int) bool {
		ja, jb := candidates[a], candidates[b]
		if ja.Priority != jb.Priority {
			return ja.Priority > jb.Priority
		}
		if !ja.CreatedAt.Equal(jb.CreatedAt) {
			return ja.CreatedAt.After(jb.CreatedAt)
		}
		return ja.ID > jb.ID
	})
	job := candidates[0]
	workerID := w.ID
	job.WorkerID = &workerID
	job.Status = constants.JobStatusRunning
	job.UpdatedAt = s.now()
	out := copyJob(job)
	return &out, nil
}

func (s *Store) ReleaseJobsOfWorkers(ctx context.Context, workerIDs []int64) (int64, error) {
	if len(workerIDs) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int64]bool, len(workerIDs))
	for _, id := range workerIDs {
		ids[id] = true
	}
	var released int64
	for _, j := range s.jobs {
		if j.Status == constants.JobStatusRunning && j.WorkerID != nil && ids[*j.WorkerID] {
			s.releaseLocked(j)
			released++
		}
	}
	return released, nil
}

func (s *Store) ReleaseJob(ctx context.Context, jobID, workerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != constants.JobStatusRunning || j.WorkerID == nil || *j.WorkerID != workerID {
		return false, nil
	}
	s.releaseLocked(j)
	return true, nil
}

func (s *Store) ReleaseOrphanedJobs(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var released int64
	for _, j := range s.jobs {
		if j.Status != constants.JobStatusRunning || j.WorkerID == nil {
			continue
		}
		w, ok := s.workers[*j.WorkerID]
		if !ok || !w.Status.IsActive() {
			s.releaseLocked(j)
			released++
		}
	}
	return released, nil
}

func (s *Store) releaseLocked(j *model.Job) {
	j.Status = constants.JobStatusPending
	j.WorkerID = nil
	j.UpdatedAt = s.now()
}

func (s *Store) GetJob(ctx context.Context, namespace string, jobID int64) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.jobInNamespace(namespace, jobID)
	if err != nil {
		return nil, err
	}
	out := copyJob(j)
	return &out, nil
}

func (s *Store) jobInNamespace(namespace string, jobID int64) (*model.Job, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %d", model.ErrNotFound, jobID)
	}
	ns := s.namespaceByName(namespace)
	if ns == nil || ns.ID != j.NamespaceID {
		return nil, fmt.Errorf("%w: job %d in namespace %q", model.ErrNotFound, jobID, namespace)
	}
	return j, nil
}

func (s *Store) CompleteJob(ctx context.Context, namespace string, workerID int64, result *model.JobResultRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.jobInNamespace(namespace, result.JobID)
	if err != nil {
		return err
	}
	if j.Status != constants.JobStatusRunning || j.WorkerID == nil || *j.WorkerID != workerID {
		return fmt.Errorf("%w: job %d, worker %d", model.ErrOwnershipConflict, j.ID, workerID)
	}
	s.metrics = append(s.metrics, buildMetricRows(j, result)...)
	completedBy := workerID
	j.CompletedBy = &completedBy
	j.WorkerID = nil
	j.Status = constants.JobStatusCompleted
	j.UpdatedAt = s.now()
	return nil
}

func (s *Store) CountRunningJobs(ctx context.Context, workerID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, j := range s.jobs {
		if j.Status == constants.JobStatusRunning && j.WorkerID != nil && *j.WorkerID == workerID {
			n++
		}
	}
	return n, nil
}

func buildMetricRows(j *model.Job, result *model.JobResultRequest) []model.MetricRow {
	rows := make([]model.MetricRow, 0, result.RowCount())
	for _, m := range result.DatasetLevelMetrics {
		rows = append(rows, model.MetricRow{
			JobID:          j.ID,
			RunID:          j.RunID,
			Name:           m.Name,
			HigherIsBetter: m.HigherIsBetter,
			Score:          m.Score,
		})
	}
	for _, m := range result.SegmentLevelMetrics {
		for i, score := range m.Scores {
			idx := i
			row := model.MetricRow{
				JobID:          j.ID,
				RunID:          j.RunID,
				Name:           m.Name,
				HigherIsBetter: m.HigherIsBetter,
				Score:          score,
				SegmentIndex:   &idx,
			}
			if m.Custom != nil {
				row.Custom = m.Custom[i]
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func copyJob(j *model.Job) model.Job {
	out := *j
	if j.WorkerID != nil {
		id := *j.WorkerID
		out.WorkerID = &id
	}
	if j.CompletedBy != nil {
		id := *j.CompletedBy
		out.CompletedBy = &id
	}
	return out
}

func containsStatus(list []constants.WorkerStatus, s constants.WorkerStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}
