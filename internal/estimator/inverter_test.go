package estimator

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"undetected/internal/hypergeom"
)

var referenceStep = Step{S0: 10, S1: 12, U1: 5, D0: 3}

func TestMidPCentralValues(t *testing.T) {
	want := []float64{0.7222222, 0.4736842, 0.3026316, 0.1929825, 0.1240602, 0.0807453, 0.0532990, 0.0356979}
	inv := NewInverter(nil)
	for i, w := range want {
		assert.InDelta(t, w, inv.MidP(referenceStep, 8+i), 1e-7, "U0=%d", 8+i)
	}
}

func TestMidPFisherValues(t *testing.T) {
	cases := []struct {
		omega float64
		want  []float64
	}{
		{0.5, []float64{0.8076923, 0.6341463, 0.4920635, 0.3804035, 0.2942424, 0.2282532}},
		{2, []float64{0.6428571, 0.3181818, 0.1507937, 0.0721311, 0.0354366, 0.0179837}},
	}
	for _, tc := range cases {
		inv := NewInverter(hypergeom.Fisher{Omega: tc.omega})
		for i, w := range tc.want {
			assert.InDelta(t, w, inv.MidP(referenceStep, 8+i), 1e-7, "omega=%v U0=%d", tc.omega, 8+i)
		}
	}
}

func TestMidPNonIncreasingInU0(t *testing.T) {
	for _, m := range []hypergeom.Model{hypergeom.Central{}, hypergeom.Fisher{Omega: 0.3}, hypergeom.Fisher{Omega: 4}} {
		inv := NewInverter(m)
		prev := 1.0
		for u0 := referenceStep.MinPossible(); u0 < 400; u0++ {
			p := inv.MidP(referenceStep, u0)
			require.LessOrEqual(t, p, prev+1e-12, "%s U0=%d", hypergeom.Describe(m), u0)
			prev = p
		}
	}
}

func TestBoundValues(t *testing.T) {
	cases := []struct {
		alpha float64
		want  int
	}{
		{0.0001, 35},
		{0.01, 18},
		{0.3, 10},
		{0.47, 9},
		{0.5, 8},
		{0.72, 8},
	}
	inv := NewInverter(nil)
	for _, tc := range cases {
		got, err := inv.Bound(referenceStep, tc.alpha)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "alpha=%v", tc.alpha)
	}
}

func TestBoundFisherValues(t *testing.T) {
	cases := []struct {
		alpha       float64
		half, twice int
	}{
		{0.01, 27, 13},
		{0.3, 11, 9},
		{0.5, 9, 8},
	}
	half := NewInverter(hypergeom.Fisher{Omega: 0.5})
	twice := NewInverter(hypergeom.Fisher{Omega: 2})
	for _, tc := range cases {
		got, err := half.Bound(referenceStep, tc.alpha)
		require.NoError(t, err)
		assert.Equal(t, tc.half, got, "omega=0.5 alpha=%v", tc.alpha)
		got, err = twice.Bound(referenceStep, tc.alpha)
		require.NoError(t, err)
		assert.Equal(t, tc.twice, got, "omega=2 alpha=%v", tc.alpha)
	}
}

func TestBoundMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	inv := NewInverter(nil)
	for trial := 0; trial < 300; trial++ {
		s := Step{S0: 2 + rng.IntN(40), U1: rng.IntN(20), D0: rng.IntN(10)}
		// S1 <= S0+D0 keeps the step consistent; S1 > D0+1 keeps mid-P
		// falling to zero so the scan terminates.
		s.S1 = s.D0 + 2 + rng.IntN(s.S0-1)
		alpha := 0.02 + 0.96*rng.Float64()
		if inv.MidP(s, s.MinPossible()) < alpha {
			continue
		}
		want := s.MinPossible()
		for inv.MidP(s, want+1) >= alpha {
			want++
		}
		got, err := inv.Bound(s, alpha)
		require.NoError(t, err)
		require.Equal(t, want, got, "step %+v alpha %v", s, alpha)
	}
}

func TestBoundNonIncreasingInAlpha(t *testing.T) {
	inv := NewInverter(nil)
	prev := int(^uint(0) >> 1)
	for alpha := 0.001; alpha < 0.72; alpha += 0.007 {
		got, err := inv.Bound(referenceStep, alpha)
		require.NoError(t, err)
		require.LessOrEqual(t, got, prev, "alpha=%v", alpha)
		require.GreaterOrEqual(t, got, referenceStep.MinPossible())
		prev = got
	}
}

func TestGuardTransitions(t *testing.T) {
	inv := NewInverter(nil)
	cases := []struct {
		name       string
		alpha      float64
		impossible bool
		want       int
		wantFlag   bool
	}{
		{"feasible stays normal", 0.3, false, 10, false},
		{"bound at minimum", 0.5, false, 8, false},
		{"enter infeasible region", 0.9, false, 7, true},
		{"second infeasible step holds minimum", 0.9, true, 8, true},
		{"extreme draw", 0.999, false, 7, true},
		{"minimum bound keeps flag", 0.5, true, 8, true},
		{"leaving infeasible region", 0.3, true, 10, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, flag, err := inv.Guard(referenceStep, tc.alpha, tc.impossible)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantFlag, flag)
		})
	}
}

func TestGuardClampsAtZero(t *testing.T) {
	got, flag, err := NewInverter(nil).Guard(Step{}, 0.6, false)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.True(t, flag)
}

func TestBracketDiverges(t *testing.T) {
	// With no detected members mid-P is exactly 0.5 for every U0.
	_, err := NewInverter(nil).Bound(Step{}, 0.5)
	assert.True(t, errors.Is(err, ErrBracketDiverged))

	_, _, err = NewInverter(nil, WithMaxDoublings(5)).Guard(Step{}, 0.5, false)
	assert.ErrorIs(t, err, ErrBracketDiverged)
}

func TestInvalidInputs(t *testing.T) {
	inv := NewInverter(nil)
	_, err := inv.Bound(Step{S0: -1}, 0.5)
	assert.ErrorIs(t, err, ErrNegativeInput)
	_, _, err = inv.Guard(Step{D0: -2}, 0.5, false)
	assert.ErrorIs(t, err, ErrNegativeInput)
	for _, alpha := range []float64{0, 1, -0.2, 1.5} {
		_, err = inv.Bound(referenceStep, alpha)
		assert.ErrorIs(t, err, ErrInvalidAlpha, "alpha %v", alpha)
	}
	// more survivors than the pool can hold
	_, _, err = inv.Guard(Step{S0: 0, S1: 5}, 0.5, false)
	assert.ErrorIs(t, err, ErrUndefinedMidP)
}
