package simulate

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"undetected/internal/series"
)

func smallScenario() Scenario {
	return Scenario{
		U0:         10,
		S0:         40,
		Survivors:  []int{49, 48, 48, 46, 45, 45, 44, 42, 41, 40},
		Detections: []int{0, 1, 0, 0, 1, 0, 0, 1, 0, 0},
	}
}

func TestSimulateConservesMembers(t *testing.T) {
	for _, sc := range []Scenario{smallScenario(), BirdsLike()} {
		rng := rand.New(rand.NewPCG(1, 2))
		for rep := 0; rep < 20; rep++ {
			pop, err := Simulate(sc, rng)
			require.NoError(t, err)
			last := len(pop.U) - 1
			assert.Zero(t, pop.U[last])
			assert.Equal(t, sc.U0, pop.U[0])
			for i := range pop.S {
				require.Equal(t, sc.U0+sc.S0, pop.S[i]+pop.E[i]+pop.U[i]+pop.X[i], "timestep %d", i)
				if i > 0 {
					require.GreaterOrEqual(t, pop.E[i], pop.E[i-1])
					require.GreaterOrEqual(t, pop.X[i], pop.X[i-1])
				}
			}
			_, err = series.Derive(pop.Series())
			require.NoError(t, err)
		}
	}
}

func TestSimulateRunsPastSchedule(t *testing.T) {
	sc := Scenario{U0: 5, S0: 3}
	pop, err := Simulate(sc, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	assert.Zero(t, pop.U[len(pop.U)-1])
	assert.Greater(t, len(pop.S), 1)
}

func TestScenarioValidate(t *testing.T) {
	assert.NoError(t, BirdsLike().Validate())
	assert.ErrorIs(t, Scenario{U0: -1}.Validate(), ErrInvalidScenario)
	assert.ErrorIs(t, Scenario{U0: 1, S0: 1, Survivors: []int{1}}.Validate(), ErrInvalidScenario)
	assert.ErrorIs(t, Scenario{U0: 1, S0: 1, Survivors: []int{3}, Detections: []int{0}}.Validate(), ErrInvalidScenario)
	assert.ErrorIs(t, Scenario{U0: 1, S0: 1, Survivors: []int{1}, Detections: []int{-1}}.Validate(), ErrInvalidScenario)
}

func TestHypergeometricMean(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	const reps = 4000
	sum := 0
	for i := 0; i < reps; i++ {
		x := Hypergeometric(rng, 50, 20, 30)
		require.GreaterOrEqual(t, x, 0)
		require.LessOrEqual(t, x, 20)
		sum += x
	}
	// E[X] = draws*marked/pool = 12
	assert.InDelta(t, 12, float64(sum)/reps, 0.25)
	assert.Equal(t, 20, Hypergeometric(rng, 50, 20, 50))
	assert.Equal(t, 0, Hypergeometric(rng, 50, 20, 0))
}

func TestCoverage(t *testing.T) {
	if testing.Short() {
		t.Skip("coverage simulation is slow")
	}
	res, err := Coverage(context.Background(), CoverageConfig{
		Scenario:    smallScenario(),
		Simulations: 20,
		Samples:     200,
		Percentiles: []float64{90, 50},
		Seed:        17,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, res.Simulations)
	// A wider interval from the same samples contains the narrower one.
	assert.GreaterOrEqual(t, res.Covered[0], res.Covered[1])
	assert.GreaterOrEqual(t, res.Covered[0], 5)
	assert.Greater(t, res.MeanEstimate, 0.0)
	assert.InDelta(t, float64(res.Covered[0])/20, res.Rate(0), 1e-12)
	assert.Zero(t, res.FloorViolations)
}

func TestCoverageIsCalibrated(t *testing.T) {
	if testing.Short() {
		t.Skip("calibration run simulates 150 populations")
	}
	res, err := Coverage(context.Background(), CoverageConfig{
		Scenario:    BirdsLike(),
		Simulations: 150,
		Samples:     300,
		Percentiles: []float64{90, 80, 50},
		Seed:        11,
	})
	require.NoError(t, err)
	// Binomial noise on 150 simulations is about 0.04 at these rates.
	for i, p := range res.Percentiles {
		assert.InDelta(t, p/100, res.Rate(i), 0.08, "nominal %g", p)
	}
	assert.Zero(t, res.FloorViolations)
}

// flatStartScenario loses no member over its first three steps, so E stays
// flat there and collapsing must drop timesteps.
func flatStartScenario() Scenario {
	return Scenario{
		U0:         10,
		S0:         40,
		Survivors:  []int{50, 50, 50, 49, 48, 47, 46, 45, 44, 43},
		Detections: []int{1, 0, 1, 0, 1, 0, 0, 1, 0, 0},
	}
}

func coverageSteps(t *testing.T, collapse bool) (CoverageResult, []int) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	res, err := Coverage(context.Background(), CoverageConfig{
		Scenario:    flatStartScenario(),
		Simulations: 60,
		Samples:     200,
		Percentiles: []float64{90, 50},
		Seed:        23,
		Collapse:    collapse,
		Logger:      logger,
	})
	require.NoError(t, err)
	var steps []int
	for _, entry := range hook.AllEntries() {
		if entry.Message != "coverage simulation done" {
			continue
		}
		assert.Equal(t, collapse, entry.Data["collapsed"])
		steps = append(steps, entry.Data["steps"].(int))
	}
	require.Len(t, steps, 60)
	return res, steps
}

func TestCoverageCollapsesFlatSteps(t *testing.T) {
	if testing.Short() {
		t.Skip("coverage simulation is slow")
	}
	full, fullSteps := coverageSteps(t, false)
	collapsed, collapsedSteps := coverageSteps(t, true)
	for i := range fullSteps {
		assert.Less(t, collapsedSteps[i], fullSteps[i], "simulation %d", i)
	}
	for _, res := range []CoverageResult{full, collapsed} {
		assert.GreaterOrEqual(t, res.Covered[0], res.Covered[1])
		assert.GreaterOrEqual(t, res.Rate(0), 0.6)
		assert.Zero(t, res.FloorViolations)
	}
}

func TestCoverageRejectsBadConfig(t *testing.T) {
	_, err := Coverage(context.Background(), CoverageConfig{Scenario: smallScenario()})
	assert.Error(t, err)
	_, err = Coverage(context.Background(), CoverageConfig{Scenario: smallScenario(), Simulations: 1, Samples: 1, Percentiles: []float64{120}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Coverage(ctx, CoverageConfig{Scenario: smallScenario(), Simulations: 1, Samples: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
