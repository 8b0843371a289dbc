// Package core runs the estimator experiments, records them as runs and
// publishes their result tables.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"undetected/internal/adapters/exports"
	"undetected/internal/blob"
	"undetected/internal/estimator"
	"undetected/internal/hypergeom"
	"undetected/internal/infra/persistence/memory"
	"undetected/pkg/domain"
)

// ErrNoBlobStore is returned by artifact operations on a service without a
// blob store.
var ErrNoBlobStore = errors.New("core: no blob store configured")

// Service drives experiments over a run store.
type Service struct {
	runs    domain.RunStore
	blobs   blob.Store
	log     logrus.FieldLogger
	metrics *Metrics
	nowFn   func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithBlobStore attaches the artifact store used by Publish.
func WithBlobStore(b blob.Store) Option { return func(s *Service) { s.blobs = b } }

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService constructs a service; a nil store selects an in-memory one.
func NewService(runs domain.RunStore, opts ...Option) *Service {
	if runs == nil {
		runs = memory.NewStore()
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	s := &Service{
		runs:  runs,
		log:   l,
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the run store.
func (s *Service) Store() domain.RunStore { return s.runs }

// Metrics returns the attached metrics, possibly nil.
func (s *Service) Metrics() *Metrics { return s.metrics }

// Close releases the run store.
func (s *Service) Close() error { return s.runs.Close() }

func (s *Service) recorder() estimator.Recorder {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

func (s *Service) sampler(cfg estimator.Config, log logrus.FieldLogger) (*estimator.Sampler, error) {
	return estimator.NewSampler(cfg, estimator.WithLogger(log), estimator.WithRecorder(s.recorder()))
}

// configParameters records the settings of cfg on a run.
func configParameters(cfg estimator.Config) map[string]any {
	return map[string]any{
		"replicates": cfg.Replicates,
		"percentile": cfg.Percentile,
		"u_t":        cfg.UT,
		"seed":       cfg.Seed,
		"model":      hypergeom.Describe(modelOrCentral(cfg.Model)),
	}
}

func modelOrCentral(m hypergeom.Model) hypergeom.Model {
	if m == nil {
		return hypergeom.Central{}
	}
	return m
}

// record persists a finished experiment and updates metrics.
func (s *Service) record(ctx context.Context, kind domain.RunKind, params map[string]any, table domain.Table, detail any, started time.Time) (domain.RunRecord, error) {
	run := domain.RunRecord{
		ID:         s.newID(),
		Kind:       kind,
		Parameters: params,
		Result:     table,
		CreatedAt:  s.nowFn(),
		DurationMS: float64(time.Since(started)) / float64(time.Millisecond),
	}
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			return domain.RunRecord{}, fmt.Errorf("encode %s detail: %w", kind, err)
		}
		run.Detail = raw
	}
	if err := s.runs.SaveRun(ctx, run); err != nil {
		return domain.RunRecord{}, fmt.Errorf("save %s run: %w", kind, err)
	}
	s.log.WithFields(logrus.Fields{"run_id": run.ID, "kind": kind, "rows": len(table.Rows), "duration_ms": run.DurationMS}).Info("run recorded")
	return run, nil
}

func (s *Service) observe(kind domain.RunKind, err error, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveExperiment(kind, err, time.Since(started))
	}
	if err != nil {
		s.log.WithError(err).WithField("kind", kind).Warn("run failed")
	}
}

// GetRun returns a stored run.
func (s *Service) GetRun(ctx context.Context, id string) (domain.RunRecord, bool, error) {
	return s.runs.GetRun(ctx, id)
}

// ListRuns returns runs of kind, or all runs when kind is empty.
func (s *Service) ListRuns(ctx context.Context, kind domain.RunKind) ([]domain.RunRecord, error) {
	return s.runs.ListRuns(ctx, kind)
}

// DeleteRun removes a run and any artifacts published for it.
func (s *Service) DeleteRun(ctx context.Context, id string) (bool, error) {
	removed, err := s.runs.DeleteRun(ctx, id)
	if err != nil || !removed || s.blobs == nil {
		return removed, err
	}
	infos, err := s.blobs.List(ctx, blob.RunPrefix(id))
	if err != nil {
		return true, fmt.Errorf("list artifacts of %s: %w", id, err)
	}
	for _, info := range infos {
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			return true, fmt.Errorf("delete artifact %s: %w", info.Key, err)
		}
	}
	return true, nil
}

// Publish renders a stored run into the blob store.
func (s *Service) Publish(ctx context.Context, id string, formats ...exports.Format) ([]exports.Artifact, error) {
	if s.blobs == nil {
		return nil, ErrNoBlobStore
	}
	run, ok, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return exports.Publish(ctx, s.blobs, run, formats)
}

// Artifacts lists the published artifacts of a run.
func (s *Service) Artifacts(ctx context.Context, id string) ([]blob.Info, error) {
	if s.blobs == nil {
		return nil, ErrNoBlobStore
	}
	return s.blobs.List(ctx, blob.RunPrefix(id))
}

// EstimateTask adapts an estimate request to the export worker.
func (s *Service) EstimateTask(req EstimateRequest) exports.Task {
	return func(ctx context.Context) (domain.RunRecord, error) {
		run, _, err := s.Estimate(ctx, req)
		return run, err
	}
}
