package estimator

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"undetected/internal/hypergeom"
	"undetected/internal/series"
)

// DefaultPercentile is the default central interval width.
const DefaultPercentile = 95.0

// Config controls a sampling run.
type Config struct {
	// Replicates is the number of trajectories to draw.
	Replicates int
	// Percentile is the central interval width, e.g. 95 for 2.5/97.5 bounds.
	Percentile float64
	// UT is the undetected-extant count fixed at the final timestep.
	UT int
	// Workers bounds the number of concurrently sampled replicates; zero
	// means GOMAXPROCS.
	Workers int
	// Seed is the base seed. Replicate i draws from PCG(Seed, i), so results
	// do not depend on Workers.
	Seed uint64
	// Model is the survival model; nil selects the central model.
	Model hypergeom.Model
	// MaxDoublings bounds the bracketing search; zero means the default.
	MaxDoublings int
}

// Validate rejects configurations before any replicate runs.
func (c Config) Validate() error {
	if c.Replicates <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidReplicates, c.Replicates)
	}
	if _, _, err := Tails(c.Percentile); err != nil {
		return err
	}
	if c.UT < 0 {
		return fmt.Errorf("%w: U_T=%d", ErrNegativeInput, c.UT)
	}
	if c.Workers < 0 {
		return fmt.Errorf("estimator: workers must not be negative: %d", c.Workers)
	}
	return nil
}

// Recorder observes sampling progress. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveReplicate(path Path)
	ObserveFailure(err error)
	ObserveRun(replicates int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveReplicate(Path)         {}
func (nopRecorder) ObserveFailure(error)          {}
func (nopRecorder) ObserveRun(int, time.Duration) {}

// Sampler draws ensembles of trajectories on a bounded worker pool.
type Sampler struct {
	cfg      Config
	inv      *Inverter
	log      logrus.FieldLogger
	recorder Recorder
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithLogger sets the logger; the default discards output.
func WithLogger(l logrus.FieldLogger) SamplerOption {
	return func(s *Sampler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRecorder sets the progress recorder.
func WithRecorder(r Recorder) SamplerOption {
	return func(s *Sampler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewSampler validates cfg and returns a sampler for it.
func NewSampler(cfg Config, opts ...SamplerOption) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	s := &Sampler{
		cfg:      cfg,
		inv:      NewInverter(cfg.Model, WithMaxDoublings(cfg.MaxDoublings)),
		log:      discardLogger(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Sampler) Config() Config { return s.cfg }

// Sample draws cfg.Replicates trajectories over tl. The first failing
// replicate aborts the run and is reported as a *ReplicateError.
func (s *Sampler) Sample(ctx context.Context, tl series.Timeline) (*Ensemble, error) {
	n := s.cfg.Replicates
	ens := &Ensemble{
		Timeline:   tl,
		UT:         s.cfg.UT,
		Paths:      make([][]int, n),
		Excursions: make([]int, n),
	}
	log := s.log.WithFields(logrus.Fields{
		"replicates": n,
		"workers":    s.cfg.Workers,
		"model":      hypergeom.Describe(s.inv.Model()),
		"u_t":        s.cfg.UT,
		"steps":      tl.Steps(),
	})
	log.Debug("sampling trajectories")
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path, err := s.inv.Trajectory(tl, s.cfg.UT, Draws(s.cfg.Seed, i))
			if err != nil {
				s.recorder.ObserveFailure(err)
				return &ReplicateError{Index: i, Err: err}
			}
			ens.Paths[i] = path.U
			ens.Excursions[i] = path.Excursions
			s.recorder.ObserveReplicate(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("sampling aborted")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	s.recorder.ObserveRun(n, elapsed)
	log.WithField("elapsed", elapsed).Debug("sampling complete")
	return ens, nil
}

// Estimate samples an ensemble and summarises it at the configured
// percentile.
func (s *Sampler) Estimate(ctx context.Context, tl series.Timeline) (Summary, *Ensemble, error) {
	ens, err := s.Sample(ctx, tl)
	if err != nil {
		return Summary{}, nil, err
	}
	sum, err := Summarize(ens, s.cfg.Percentile)
	if err != nil {
		return Summary{}, nil, err
	}
	return sum, ens, nil
}

// Draws returns the confidence-level stream of replicate rep: uniform
// variates on the open interval (0, 1) from PCG(seed, rep).
func Draws(seed uint64, rep int) func() float64 {
	u := distuv.Uniform{Min: 0, Max: 1, Src: rand.NewPCG(seed, uint64(rep))}
	return func() float64 {
		for {
			if v := u.Rand(); v > 0 {
				return v
			}
		}
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
