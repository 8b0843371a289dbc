package simulate

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"

	"github.com/dgryski/go-onlinestats"
	"github.com/sirupsen/logrus"

	"undetected/internal/estimator"
	"undetected/internal/hypergeom"
	"undetected/internal/series"
)

// DefaultPercentiles are the nominal interval widths checked by Coverage.
var DefaultPercentiles = []float64{90, 80, 70, 60, 50, 40, 30, 20, 10}

// CoverageConfig controls a coverage check.
type CoverageConfig struct {
	Scenario Scenario
	// Simulations is the number of simulated populations.
	Simulations int
	// Samples is the number of trajectories drawn per population.
	Samples     int
	Percentiles []float64
	Seed        uint64
	// Collapse keeps only the timesteps at which E changes before
	// inferring, as for a record without yearly resolution.
	Collapse bool
	Workers     int
	Model       hypergeom.Model
	Logger      logrus.FieldLogger
	Recorder    estimator.Recorder
}

// CoverageResult counts, per nominal percentile, the simulations whose true
// U_0 fell inside the sampled interval.
type CoverageResult struct {
	Percentiles []float64 `json:"percentiles"`
	Covered     []int     `json:"covered"`
	Simulations int       `json:"simulations"`
	Samples     int       `json:"samples"`
	// MeanEstimate and StdEstimate describe the per-simulation mean U_0
	// estimates; MeanError is the average of estimate minus truth.
	MeanEstimate float64 `json:"mean_estimate"`
	StdEstimate  float64 `json:"std_estimate"`
	MeanError    float64 `json:"mean_error"`
	// FloorViolations counts sampled trajectories that fell below the
	// smallest U_t consistent with U_T and the later discoveries.
	FloorViolations int `json:"floor_violations"`
}

// Rate returns the observed coverage fraction for percentile index i.
func (r CoverageResult) Rate(i int) float64 {
	if r.Simulations == 0 {
		return 0
	}
	return float64(r.Covered[i]) / float64(r.Simulations)
}

// Coverage simulates populations, infers U_0 from their detected series and
// checks the sampled intervals against the truth.
func Coverage(ctx context.Context, cfg CoverageConfig) (CoverageResult, error) {
	if cfg.Simulations <= 0 {
		return CoverageResult{}, fmt.Errorf("simulate: simulations must be positive: %d", cfg.Simulations)
	}
	if len(cfg.Percentiles) == 0 {
		cfg.Percentiles = DefaultPercentiles
	}
	for _, p := range cfg.Percentiles {
		if _, _, err := estimator.Tails(p); err != nil {
			return CoverageResult{}, err
		}
	}
	if err := cfg.Scenario.Validate(); err != nil {
		return CoverageResult{}, err
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	res := CoverageResult{
		Percentiles: slices.Clone(cfg.Percentiles),
		Covered:     make([]int, len(cfg.Percentiles)),
		Simulations: cfg.Simulations,
		Samples:     cfg.Samples,
	}
	estimates := onlinestats.NewRunning()
	errs := onlinestats.NewRunning()

	for sim := 0; sim < cfg.Simulations; sim++ {
		if err := ctx.Err(); err != nil {
			return CoverageResult{}, err
		}
		pop, err := Simulate(cfg.Scenario, rand.New(rand.NewPCG(cfg.Seed, uint64(sim))))
		if err != nil {
			return CoverageResult{}, err
		}
		detected := pop.Series()
		if cfg.Collapse {
			if detected, err = series.SEChangedE(detected); err != nil {
				return CoverageResult{}, fmt.Errorf("simulation %d: %w", sim, err)
			}
		}
		tl, err := series.Derive(detected)
		if err != nil {
			return CoverageResult{}, fmt.Errorf("simulation %d: %w", sim, err)
		}
		sampler, err := estimator.NewSampler(estimator.Config{
			Replicates: cfg.Samples,
			Percentile: estimator.DefaultPercentile,
			UT:         pop.U[len(pop.U)-1],
			Workers:    cfg.Workers,
			Seed:       cfg.Seed ^ uint64(sim+1)<<32,
			Model:      cfg.Model,
		}, estimator.WithLogger(log), estimator.WithRecorder(cfg.Recorder))
		if err != nil {
			return CoverageResult{}, err
		}
		ens, err := sampler.Sample(ctx, tl)
		if err != nil {
			return CoverageResult{}, fmt.Errorf("simulation %d: %w", sim, err)
		}

		floor := estimator.MinPossible(tl, pop.U[len(pop.U)-1])
		u0 := make([]float64, len(ens.Paths))
		for i, path := range ens.Paths {
			u0[i] = float64(path[0])
			if belowFloor(path, floor) {
				res.FloorViolations++
			}
		}
		truth := float64(pop.U[0])
		for i, p := range cfg.Percentiles {
			band, err := estimator.BandOf(u0, p)
			if err != nil {
				return CoverageResult{}, err
			}
			if band.Lo <= truth && truth <= band.Hi {
				res.Covered[i]++
			}
			if i == 0 {
				estimates.Push(band.Mean)
				errs.Push(band.Mean - truth)
			}
		}
		log.WithFields(logrus.Fields{"simulation": sim, "steps": tl.Steps(), "u0": pop.U[0], "collapsed": cfg.Collapse}).Debug("coverage simulation done")
	}

	res.MeanEstimate = estimates.Mean()
	if estimates.Len() > 1 {
		res.StdEstimate = estimates.Stddev()
	}
	res.MeanError = errs.Mean()
	if res.FloorViolations > 0 {
		log.WithField("violations", res.FloorViolations).Warn("trajectories below the feasibility floor")
	}
	return res, nil
}

func belowFloor(path, floor []int) bool {
	for t := range path {
		if path[t] < floor[t] {
			return true
		}
	}
	return false
}
