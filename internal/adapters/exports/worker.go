// Package exports runs estimator jobs in the background and publishes the
// resulting tables to the artifact store.
package exports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"undetected/internal/blob"
	"undetected/pkg/domain"
)

// Status describes the lifecycle stage of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

// DefaultQueueSize bounds the number of jobs waiting to run.
const DefaultQueueSize = 32

var (
	// ErrQueueFull is returned when the bounded queue cannot take a job.
	ErrQueueFull = errors.New("exports: queue full")
	// ErrUnknownJob is returned by Wait for ids the worker never issued.
	ErrUnknownJob = errors.New("exports: unknown job")
	// ErrStopped is returned when enqueueing after Stop.
	ErrStopped = errors.New("exports: worker stopped")
)

// Task produces the run record a job publishes.
type Task func(ctx context.Context) (domain.RunRecord, error)

// Input is an enqueue request.
type Input struct {
	Kind        domain.RunKind
	Parameters  map[string]any
	Formats     []Format
	RequestedBy string
	Task        Task
}

// Job tracks an enqueued task and the artifacts it produced.
type Job struct {
	ID          string         `json:"id"`
	Kind        domain.RunKind `json:"kind"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Formats     []Format       `json:"formats"`
	Status      Status         `json:"status"`
	Error       string         `json:"error,omitempty"`
	RunID       string         `json:"run_id,omitempty"`
	Artifacts   []Artifact     `json:"artifacts,omitempty"`
	RequestedBy string         `json:"requested_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (j Job) clone() Job {
	if j.Parameters != nil {
		params := make(map[string]any, len(j.Parameters))
		for k, v := range j.Parameters {
			params[k] = v
		}
		j.Parameters = params
	}
	j.Formats = append([]Format(nil), j.Formats...)
	j.Artifacts = append([]Artifact(nil), j.Artifacts...)
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		j.CompletedAt = &at
	}
	return j
}

// AuditLogger records job transitions.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry is one job transition.
type AuditEntry struct {
	ID         string         `json:"id"`
	JobID      string         `json:"job_id"`
	Kind       domain.RunKind `json:"kind"`
	Actor      string         `json:"actor,omitempty"`
	Status     Status         `json:"status"`
	Note       string         `json:"note,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// LogAuditor writes audit entries as structured log lines.
type LogAuditor struct {
	Logger logrus.FieldLogger
}

// Record implements AuditLogger.
func (a LogAuditor) Record(_ context.Context, e AuditEntry) {
	if a.Logger == nil {
		return
	}
	a.Logger.WithFields(logrus.Fields{
		"audit_id": e.ID,
		"job_id":   e.JobID,
		"kind":     e.Kind,
		"actor":    e.Actor,
		"status":   e.Status,
		"note":     e.Note,
	}).Info("export job transition")
}

type jobState struct {
	job  Job
	task Task
	done chan struct{}
}

// Worker executes queued jobs on a single background goroutine.
type Worker struct {
	store blob.Store
	audit AuditLogger
	log   logrus.FieldLogger
	nowFn func() time.Time

	queue chan string
	mu    sync.RWMutex
	jobs  map[string]*jobState

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started sync.Once
}

// Option customises a Worker.
type Option func(*Worker)

// WithAudit sets the audit sink.
func WithAudit(a AuditLogger) Option { return func(w *Worker) { w.audit = a } }

// WithLogger sets the worker logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan string, n)
		}
	}
}

// NewWorker constructs a worker publishing into store. A nil store skips
// publication and jobs only carry the run id.
func NewWorker(store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	w := &Worker{
		store:  store,
		log:    discard,
		nowFn:  func() time.Time { return time.Now().UTC() },
		queue:  make(chan string, DefaultQueueSize),
		jobs:   make(map[string]*jobState),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing jobs. Repeated calls are no-ops.
func (w *Worker) Start() {
	w.started.Do(func() {
		w.wg.Add(1)
		go w.loop()
	})
}

// Stop halts the worker and waits for the running job, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case id := <-w.queue:
			w.process(id)
		}
	}
}

// Enqueue validates the input and queues it.
func (w *Worker) Enqueue(ctx context.Context, in Input) (Job, error) {
	if in.Task == nil {
		return Job{}, fmt.Errorf("exports: task required")
	}
	if w.ctx.Err() != nil {
		return Job{}, ErrStopped
	}
	formats, err := normalizeFormats(in.Formats)
	if err != nil {
		return Job{}, err
	}
	now := w.nowFn()
	job := Job{
		ID:          uuid.NewString(),
		Kind:        in.Kind,
		Parameters:  in.Parameters,
		Formats:     formats,
		Status:      StatusQueued,
		RequestedBy: in.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	job = job.clone()
	state := &jobState{job: job, task: in.Task, done: make(chan struct{})}

	w.mu.Lock()
	w.jobs[job.ID] = state
	w.mu.Unlock()
	w.record(ctx, job, "")

	select {
	case w.queue <- job.ID:
	default:
		w.mu.Lock()
		delete(w.jobs, job.ID)
		w.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	return job.clone(), nil
}

// Get returns a snapshot of a job.
func (w *Worker) Get(id string) (Job, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	state, ok := w.jobs[id]
	if !ok {
		return Job{}, false
	}
	return state.job.clone(), true
}

// Wait blocks until the job reaches a terminal status or ctx is done.
func (w *Worker) Wait(ctx context.Context, id string) (Job, error) {
	w.mu.RLock()
	state, ok := w.jobs[id]
	w.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	select {
	case <-state.done:
		job, _ := w.Get(id)
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (w *Worker) process(id string) {
	w.mu.RLock()
	state, ok := w.jobs[id]
	w.mu.RUnlock()
	if !ok {
		return
	}
	w.transition(id, func(j *Job) { j.Status = StatusRunning }, "")

	run, err := state.task(w.ctx)
	if err != nil {
		w.fail(id, fmt.Sprintf("task failed: %v", err))
		return
	}
	var artifacts []Artifact
	if w.store != nil {
		artifacts, err = Publish(w.ctx, w.store, run, state.job.Formats)
		if err != nil {
			w.fail(id, fmt.Sprintf("publish failed: %v", err))
			return
		}
	}
	w.transition(id, func(j *Job) {
		j.Status = StatusSucceeded
		j.RunID = run.ID
		j.Artifacts = artifacts
	}, "")
	w.log.WithFields(logrus.Fields{"job_id": id, "run_id": run.ID, "artifacts": len(artifacts)}).Debug("export job complete")
}

func (w *Worker) fail(id, reason string) {
	w.transition(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = reason
	}, reason)
	w.log.WithFields(logrus.Fields{"job_id": id}).Warn(reason)
}

func (w *Worker) transition(id string, mutate func(*Job), note string) {
	now := w.nowFn()
	w.mu.Lock()
	state, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	mutate(&state.job)
	state.job.UpdatedAt = now
	if state.job.Status.Terminal() {
		state.job.CompletedAt = &now
	}
	snapshot := state.job.clone()
	w.mu.Unlock()

	w.record(w.ctx, snapshot, note)
	if snapshot.Status.Terminal() {
		close(state.done)
	}
}

func (w *Worker) record(ctx context.Context, job Job, note string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		Kind:       job.Kind,
		Actor:      job.RequestedBy,
		Status:     job.Status,
		Note:       note,
		OccurredAt: job.UpdatedAt,
	})
}
