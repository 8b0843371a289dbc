package exports

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"undetected/internal/blob"
	"undetected/pkg/domain"
)

type auditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *auditRecorder) Record(_ context.Context, e AuditEntry) {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

func (a *auditRecorder) statuses(jobID string) []Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Status
	for _, e := range a.entries {
		if e.JobID == jobID {
			out = append(out, e.Status)
		}
	}
	return out
}

func sampleRun(id string) domain.RunRecord {
	return domain.RunRecord{
		ID:   id,
		Kind: domain.RunEstimate,
		Result: domain.Table{
			Header: []string{"year", "S"},
			Rows:   [][]string{{"1900", "3"}, {"1910", "4"}},
		},
	}
}

func waitJob(t *testing.T, w *Worker, id string) Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := w.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait %s: %v", id, err)
	}
	return job
}

func TestWorkerPublishesArtifacts(t *testing.T) {
	store := blob.NewMemory()
	audit := &auditRecorder{}
	w := NewWorker(store, WithAudit(audit))
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	queued, err := w.Enqueue(context.Background(), Input{
		Kind:        domain.RunEstimate,
		Parameters:  map[string]any{"nreps": 10},
		RequestedBy: "analyst",
		Task: func(context.Context) (domain.RunRecord, error) {
			return sampleRun("run-1"), nil
		},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != StatusQueued || len(queued.Formats) != 2 {
		t.Fatalf("unexpected queued job %+v", queued)
	}

	job := waitJob(t, w, queued.ID)
	if job.Status != StatusSucceeded || job.RunID != "run-1" || job.CompletedAt == nil {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(job.Artifacts) != 2 || job.Artifacts[0].Key != "runs/run-1/result.csv" || job.Artifacts[1].Key != "runs/run-1/result.json" {
		t.Fatalf("unexpected artifacts %+v", job.Artifacts)
	}

	_, rc, err := store.Get(context.Background(), "runs/run-1/result.csv")
	if err != nil {
		t.Fatalf("get csv: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "year,S\n1900,3\n1910,4\n" {
		t.Fatalf("unexpected csv %q", body)
	}

	got := audit.statuses(queued.ID)
	want := []Status{StatusQueued, StatusRunning, StatusSucceeded}
	if len(got) != len(want) {
		t.Fatalf("expected audit trail %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected audit trail %v, got %v", want, got)
		}
	}
}

func TestWorkerRecordsFailures(t *testing.T) {
	store := blob.NewMemory()
	w := NewWorker(store)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	failing, err := w.Enqueue(context.Background(), Input{Task: func(context.Context) (domain.RunRecord, error) {
		return domain.RunRecord{}, errors.New("bracket diverged")
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job := waitJob(t, w, failing.ID)
	if job.Status != StatusFailed || !strings.Contains(job.Error, "bracket diverged") {
		t.Fatalf("unexpected failed job %+v", job)
	}

	// A second publication of the same run collides with existing artifacts.
	if _, err := Publish(context.Background(), store, sampleRun("dup"), []Format{FormatCSV}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	dup, err := w.Enqueue(context.Background(), Input{Formats: []Format{FormatCSV}, Task: func(context.Context) (domain.RunRecord, error) {
		return sampleRun("dup"), nil
	}})
	if err != nil {
		t.Fatalf("enqueue dup: %v", err)
	}
	job = waitJob(t, w, dup.ID)
	if job.Status != StatusFailed || !strings.Contains(job.Error, "publish failed") {
		t.Fatalf("expected publish failure, got %+v", job)
	}
}

func TestWorkerWithoutStoreKeepsRunID(t *testing.T) {
	w := NewWorker(nil)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })
	queued, err := w.Enqueue(context.Background(), Input{Task: func(context.Context) (domain.RunRecord, error) {
		return sampleRun("r"), nil
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	job := waitJob(t, w, queued.ID)
	if job.Status != StatusSucceeded || job.RunID != "r" || len(job.Artifacts) != 0 {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestEnqueueValidation(t *testing.T) {
	w := NewWorker(nil, WithQueueSize(1))
	task := func(context.Context) (domain.RunRecord, error) { return sampleRun("x"), nil }
	if _, err := w.Enqueue(context.Background(), Input{}); err == nil {
		t.Fatalf("expected missing task error")
	}
	if _, err := w.Enqueue(context.Background(), Input{Task: task, Formats: []Format{"xlsx"}}); err == nil {
		t.Fatalf("expected format error")
	}
	// Worker not started: the single slot fills.
	if _, err := w.Enqueue(context.Background(), Input{Task: task}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := w.Enqueue(context.Background(), Input{Task: task}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, err := w.Wait(context.Background(), "missing"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := w.Enqueue(context.Background(), Input{Task: task}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	w := NewWorker(nil)
	queued, err := w.Enqueue(context.Background(), Input{Task: func(context.Context) (domain.RunRecord, error) {
		return sampleRun("never"), nil
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.Wait(ctx, queued.ID); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if job, ok := w.Get(queued.ID); !ok || job.Status != StatusQueued {
		t.Fatalf("expected job still queued, got %+v", job)
	}
}

func TestStopWaitsForRunningTask(t *testing.T) {
	w := NewWorker(nil)
	w.Start()
	started := make(chan struct{})
	queued, err := w.Enqueue(context.Background(), Input{Task: func(ctx context.Context) (domain.RunRecord, error) {
		close(started)
		<-ctx.Done()
		return domain.RunRecord{}, ctx.Err()
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	job, _ := w.Get(queued.ID)
	if job.Status != StatusFailed {
		t.Fatalf("expected cancelled task to fail, got %+v", job)
	}
}

func TestLogAuditor(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	LogAuditor{Logger: logger}.Record(context.Background(), AuditEntry{JobID: "j1", Status: StatusRunning, Kind: domain.RunCoverage})
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.InfoLevel {
		t.Fatalf("expected info entry, got %+v", entry)
	}
	if entry.Data["job_id"] != "j1" || entry.Data["status"] != StatusRunning {
		t.Fatalf("unexpected fields %+v", entry.Data)
	}
	LogAuditor{}.Record(context.Background(), AuditEntry{})
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("json"); err != nil || f != FormatJSON {
		t.Fatalf("parse json: %v", err)
	}
	if _, err := ParseFormat("parquet"); err == nil {
		t.Fatalf("expected error")
	}
	formats, err := normalizeFormats([]Format{FormatJSON, FormatJSON, FormatCSV})
	if err != nil || len(formats) != 2 || formats[0] != FormatJSON {
		t.Fatalf("unexpected normalized formats %v err=%v", formats, err)
	}
	if _, err := Publish(context.Background(), blob.NewMemory(), domain.RunRecord{}, nil); err == nil {
		t.Fatalf("expected missing run id error")
	}
}
