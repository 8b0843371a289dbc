package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"undetected/internal/hypergeom"
	"undetected/internal/series"
	"undetected/pkg/domain"
)

func constant(v float64) func() float64 { return func() float64 { return v } }

func sequence(vs ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := vs[i%len(vs)]
		i++
		return v
	}
}

func timeline(t *testing.T, s, e []int) series.Timeline {
	t.Helper()
	tl, err := series.Derive(domain.Series{S: s, E: e})
	require.NoError(t, err)
	return tl
}

func TestTrajectorySingleStep(t *testing.T) {
	tl := timeline(t, []int{10, 12}, []int{0, 1})
	inv := NewInverter(nil)

	path, err := inv.Trajectory(tl, 5, constant(0.5))
	require.NoError(t, err)
	assert.Equal(t, []int{8, 5}, path.U)
	assert.Zero(t, path.Excursions)
	assert.Positive(t, path.Evaluations)

	path, err = inv.Trajectory(tl, 5, constant(0.3))
	require.NoError(t, err)
	assert.Equal(t, []int{10, 5}, path.U)

	path, err = inv.Trajectory(tl, 5, constant(0.9))
	require.NoError(t, err)
	assert.Equal(t, []int{7, 5}, path.U)
	assert.Equal(t, 1, path.Excursions)
}

func TestTrajectoryMatchesGuardedSteps(t *testing.T) {
	tl := timeline(t, []int{30, 28, 29, 25, 20}, []int{0, 3, 4, 9, 15})
	draws := []float64{0.2, 0.8, 0.55, 0.1}
	inv := NewInverter(nil)

	path, err := inv.Trajectory(tl, 3, sequence(draws...))
	require.NoError(t, err)

	u := 3
	impossible := false
	for i, t0 := 0, tl.Steps(); t0 >= 1; i, t0 = i+1, t0-1 {
		u, impossible, err = inv.Guard(Step{S0: tl.S[t0-1], S1: tl.S[t0], U1: u, D0: tl.D[t0-1]}, draws[i], impossible)
		require.NoError(t, err)
		assert.Equal(t, u, path.U[t0-1], "timestep %d", t0-1)
	}
}

func TestTrajectoryIsDeterministic(t *testing.T) {
	tl := timeline(t, []int{30, 28, 29, 25, 20}, []int{0, 3, 4, 9, 15})
	inv := NewInverter(hypergeom.Fisher{Omega: 0.7})
	a, err := inv.Trajectory(tl, 2, Draws(42, 7))
	require.NoError(t, err)
	b, err := inv.Trajectory(tl, 2, Draws(42, 7))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTrajectoryStaysAboveFloor(t *testing.T) {
	tl := timeline(t, []int{30, 28, 29, 25, 20}, []int{0, 3, 4, 9, 15})
	inv := NewInverter(nil)
	for rep := 0; rep < 50; rep++ {
		path, err := inv.Trajectory(tl, 4, Draws(1, rep))
		require.NoError(t, err)
		floor := MinPossible(tl, 4)
		for i, u := range path.U {
			// an excursion sits at most one below the floor
			require.GreaterOrEqual(t, u, max(0, floor[i]-1), "rep %d timestep %d", rep, i)
		}
	}
}

func TestTrajectoryNegativeBoundary(t *testing.T) {
	tl := timeline(t, []int{10, 12}, []int{0, 1})
	_, err := NewInverter(nil).Trajectory(tl, -1, constant(0.5))
	assert.ErrorIs(t, err, ErrNegativeInput)
}

func TestTrajectoryRejectsZeroDraw(t *testing.T) {
	tl := timeline(t, []int{10, 12}, []int{0, 1})
	_, err := NewInverter(nil).Trajectory(tl, 1, constant(0))
	assert.ErrorIs(t, err, ErrInvalidAlpha)
}

func TestMinPossible(t *testing.T) {
	tl := timeline(t, []int{3, 4, 2, 1}, []int{0, 1, 3, 4})
	assert.Equal(t, []int{4, 2, 2, 2}, MinPossible(tl, 2))
	assert.Equal(t, []int{8, 5}, MinPossible(timeline(t, []int{10, 12}, []int{0, 1}), 5))
}
