package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"undetected/internal/dataset"
	"undetected/internal/estimator"
	"undetected/internal/hypergeom"
	"undetected/internal/series"
	"undetected/internal/simulate"
	"undetected/pkg/domain"
)

// ErrInvalidRequest is returned for malformed experiment requests.
var ErrInvalidRequest = errors.New("core: invalid request")

// EstimateRequest asks for a per-timestep estimate of U and X.
type EstimateRequest struct {
	Series domain.Series
	Config estimator.Config
	// KeepEnsemble stores every sampled trajectory in the run detail.
	KeepEnsemble bool
}

type estimateDetail struct {
	Summary estimator.Summary `json:"summary"`
	Paths   [][]int           `json:"paths,omitempty"`
}

// Estimate samples cfg.Replicates trajectories over the series and records
// the summary table.
func (s *Service) Estimate(ctx context.Context, req EstimateRequest) (domain.RunRecord, estimator.Summary, error) {
	started := time.Now()
	run, sum, err := s.estimate(ctx, req, started)
	s.observe(domain.RunEstimate, err, started)
	return run, sum, err
}

func (s *Service) estimate(ctx context.Context, req EstimateRequest, started time.Time) (domain.RunRecord, estimator.Summary, error) {
	tl, err := series.Derive(req.Series)
	if err != nil {
		return domain.RunRecord{}, estimator.Summary{}, err
	}
	sampler, err := s.sampler(req.Config, s.log.WithField("kind", domain.RunEstimate))
	if err != nil {
		return domain.RunRecord{}, estimator.Summary{}, err
	}
	sum, ens, err := sampler.Estimate(ctx, tl)
	if err != nil {
		return domain.RunRecord{}, estimator.Summary{}, err
	}
	detail := estimateDetail{Summary: sum}
	if req.KeepEnsemble {
		detail.Paths = ens.Paths
	}
	params := configParameters(sampler.Config())
	params["steps"] = tl.Steps()
	run, err := s.record(ctx, domain.RunEstimate, params, dataset.EstimateTable(sum), detail, started)
	return run, sum, err
}

// BoundarySweepRequest varies U_T.
type BoundarySweepRequest struct {
	Series domain.Series
	UTs    []int
	Config estimator.Config
}

// SweepBoundary estimates the extinction rate for each assumed U_T.
func (s *Service) SweepBoundary(ctx context.Context, req BoundarySweepRequest) (domain.RunRecord, error) {
	started := time.Now()
	run, err := s.sweepBoundary(ctx, req, started)
	s.observe(domain.RunBoundarySweep, err, started)
	return run, err
}

func (s *Service) sweepBoundary(ctx context.Context, req BoundarySweepRequest, started time.Time) (domain.RunRecord, error) {
	if len(req.UTs) == 0 {
		return domain.RunRecord{}, fmt.Errorf("%w: no U_T values", ErrInvalidRequest)
	}
	tl, err := series.Derive(req.Series)
	if err != nil {
		return domain.RunRecord{}, err
	}
	table := dataset.NewTable(dataset.BoundaryHeader)
	for _, ut := range req.UTs {
		cfg := req.Config
		cfg.UT = ut
		band, err := s.sampleBand(ctx, tl, cfg, (*estimator.Ensemble).Rate, logrus.Fields{"u_t": ut})
		if err != nil {
			return domain.RunRecord{}, fmt.Errorf("U_T=%d: %w", ut, err)
		}
		table.Rows = append(table.Rows, dataset.BandRow(strconv.Itoa(ut), band, cfg.Replicates))
	}
	params := configParameters(req.Config)
	delete(params, "u_t")
	params["u_t_values"] = slices.Clone(req.UTs)
	return s.record(ctx, domain.RunBoundarySweep, params, table, nil, started)
}

// OmegaSweepRequest varies the Fisher odds ratio.
type OmegaSweepRequest struct {
	Series domain.Series
	Omegas []float64
	Config estimator.Config
}

// SweepOmega estimates N_total under the Fisher model for each omega.
func (s *Service) SweepOmega(ctx context.Context, req OmegaSweepRequest) (domain.RunRecord, error) {
	started := time.Now()
	run, err := s.sweepOmega(ctx, req, started)
	s.observe(domain.RunOmegaSweep, err, started)
	return run, err
}

func (s *Service) sweepOmega(ctx context.Context, req OmegaSweepRequest, started time.Time) (domain.RunRecord, error) {
	if len(req.Omegas) == 0 {
		return domain.RunRecord{}, fmt.Errorf("%w: no omega values", ErrInvalidRequest)
	}
	tl, err := series.Derive(req.Series)
	if err != nil {
		return domain.RunRecord{}, err
	}
	total := func(e *estimator.Ensemble, i int) float64 { return float64(e.Total(i)) }
	table := dataset.NewTable(dataset.OmegaHeader)
	for _, omega := range req.Omegas {
		model, err := hypergeom.New(hypergeom.KindFisher, omega)
		if err != nil {
			return domain.RunRecord{}, err
		}
		cfg := req.Config
		cfg.Model = model
		band, err := s.sampleBand(ctx, tl, cfg, total, logrus.Fields{"omega": omega})
		if err != nil {
			return domain.RunRecord{}, fmt.Errorf("omega=%g: %w", omega, err)
		}
		table.Rows = append(table.Rows, dataset.BandRow(dataset.FormatFloat(omega), band, cfg.Replicates))
	}
	params := configParameters(req.Config)
	delete(params, "model")
	params["omegas"] = slices.Clone(req.Omegas)
	return s.record(ctx, domain.RunOmegaSweep, params, table, nil, started)
}

// sampleBand samples an ensemble and reduces one per-replicate statistic.
func (s *Service) sampleBand(ctx context.Context, tl series.Timeline, cfg estimator.Config, measure func(*estimator.Ensemble, int) float64, fields logrus.Fields) (estimator.Band, error) {
	ens, err := s.sampleEnsemble(ctx, tl, cfg, fields)
	if err != nil {
		return estimator.Band{}, err
	}
	values := make([]float64, len(ens.Paths))
	for i := range ens.Paths {
		values[i] = measure(ens, i)
	}
	return estimator.BandOf(values, cfg.Percentile)
}

func (s *Service) sampleEnsemble(ctx context.Context, tl series.Timeline, cfg estimator.Config, fields logrus.Fields) (*estimator.Ensemble, error) {
	sampler, err := s.sampler(cfg, s.log.WithFields(fields))
	if err != nil {
		return nil, err
	}
	return sampler.Sample(ctx, tl)
}

// DeletionRequest drops random subsets of the species list.
type DeletionRequest struct {
	Records     []domain.Record
	Proportions []float64
	// Subsets is the number of random subsets drawn per proportion.
	Subsets int
	// FinalYear is the year whose last-seen species count as extant; zero
	// means the last year of the full record.
	FinalYear int
	// Config.Replicates trajectories are drawn per subset. The U_T of a
	// subset is Config.UT plus the extant species missing from it.
	Config estimator.Config
}

// SpeciesDeletion estimates how the extinction rate responds to an
// incomplete species list.
func (s *Service) SpeciesDeletion(ctx context.Context, req DeletionRequest) (domain.RunRecord, error) {
	started := time.Now()
	run, err := s.speciesDeletion(ctx, req, started)
	s.observe(domain.RunSpeciesDeletion, err, started)
	return run, err
}

func (s *Service) speciesDeletion(ctx context.Context, req DeletionRequest, started time.Time) (domain.RunRecord, error) {
	if len(req.Records) == 0 {
		return domain.RunRecord{}, domain.ErrEmptyRecords
	}
	if req.Subsets <= 0 || len(req.Proportions) == 0 {
		return domain.RunRecord{}, fmt.Errorf("%w: need proportions and a positive subset count", ErrInvalidRequest)
	}
	if err := req.Config.Validate(); err != nil {
		return domain.RunRecord{}, err
	}
	finalYear := req.FinalYear
	if finalYear == 0 {
		for _, r := range req.Records {
			finalYear = max(finalYear, r.LastSeen)
		}
	}
	extantFull := series.ExtantAt(req.Records, finalYear)
	n := len(req.Records)
	sizes := make([]int, len(req.Proportions))
	for pi, p := range req.Proportions {
		sizes[pi] = int(math.Round(float64(n) * p))
		if p <= 0 || p > 1 || sizes[pi] < 1 {
			return domain.RunRecord{}, fmt.Errorf("%w: proportion %g keeps %d of %d species", ErrInvalidRequest, p, sizes[pi], n)
		}
	}

	table := dataset.NewTable(dataset.DeletionHeader)
	for pi, p := range req.Proportions {
		size := sizes[pi]
		rng := rand.New(rand.NewPCG(req.Config.Seed, uint64(pi)))
		means := make([]float64, 0, req.Subsets)
		for j := 0; j < req.Subsets; j++ {
			subset := make([]domain.Record, size)
			for k, idx := range rng.Perm(n)[:size] {
				subset[k] = req.Records[idx]
			}
			mean, err := s.subsetRate(ctx, subset, extantFull, finalYear, req.Config, uint64(pi*req.Subsets+j))
			if err != nil {
				return domain.RunRecord{}, fmt.Errorf("proportion %g subset %d: %w", p, j, err)
			}
			means = append(means, mean)
		}
		band, err := estimator.BandOf(means, req.Config.Percentile)
		if err != nil {
			return domain.RunRecord{}, err
		}
		table.Rows = append(table.Rows, dataset.BandRow(dataset.FormatFloat(p), band, req.Subsets))
	}
	params := configParameters(req.Config)
	params["proportions"] = slices.Clone(req.Proportions)
	params["subsets"] = req.Subsets
	params["final_year"] = finalYear
	params["species"] = n
	return s.record(ctx, domain.RunSpeciesDeletion, params, table, nil, started)
}

// subsetRate returns the mean extinction rate over the replicates of one
// species subset.
func (s *Service) subsetRate(ctx context.Context, subset []domain.Record, extantFull, finalYear int, cfg estimator.Config, stream uint64) (float64, error) {
	reduced, err := series.Reduce(subset)
	if err != nil {
		return 0, err
	}
	tl, err := series.Derive(reduced)
	if err != nil {
		return 0, err
	}
	cfg.UT += extantFull - series.ExtantAt(subset, finalYear)
	cfg.Seed ^= (stream + 1) << 32
	ens, err := s.sampleEnsemble(ctx, tl, cfg, logrus.Fields{"species": len(subset), "u_t": cfg.UT})
	if err != nil {
		return 0, err
	}
	rates := make([]float64, len(ens.Paths))
	for i := range ens.Paths {
		rates[i] = ens.Rate(i)
	}
	return stat.Mean(rates, nil), nil
}

// CoverageRequest checks interval calibration on simulated populations.
type CoverageRequest struct {
	Config simulate.CoverageConfig
}

// Verify runs the coverage harness and records one row per nominal
// percentile.
func (s *Service) Verify(ctx context.Context, req CoverageRequest) (domain.RunRecord, simulate.CoverageResult, error) {
	started := time.Now()
	run, res, err := s.verify(ctx, req, started)
	s.observe(domain.RunCoverage, err, started)
	return run, res, err
}

func (s *Service) verify(ctx context.Context, req CoverageRequest, started time.Time) (domain.RunRecord, simulate.CoverageResult, error) {
	cfg := req.Config
	if cfg.Logger == nil {
		cfg.Logger = s.log.WithField("kind", domain.RunCoverage)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = s.recorder()
	}
	res, err := simulate.Coverage(ctx, cfg)
	if err != nil {
		return domain.RunRecord{}, simulate.CoverageResult{}, err
	}
	params := map[string]any{
		"simulations": cfg.Simulations,
		"samples":     cfg.Samples,
		"seed":        cfg.Seed,
		"model":       hypergeom.Describe(modelOrCentral(cfg.Model)),
		"u0":          cfg.Scenario.U0,
		"s0":          cfg.Scenario.S0,
		"collapse":    cfg.Collapse,
	}
	run, err := s.record(ctx, domain.RunCoverage, params, dataset.CoverageTable(res), res, started)
	return run, res, err
}
