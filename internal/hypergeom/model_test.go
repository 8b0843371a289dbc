package hypergeom

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/combin"
)

func centralPMF(x, pool, marked, draws int) float64 {
	return math.Exp(combin.LogGeneralizedBinomial(float64(marked), float64(x)) +
		combin.LogGeneralizedBinomial(float64(pool-marked), float64(draws-x)) -
		combin.LogGeneralizedBinomial(float64(pool), float64(draws)))
}

// pmfFromCDF differences adjacent CDF values of m.
func pmfFromCDF(m Model, x, pool, marked, draws int) float64 {
	hi := m.CDF(x, pool, marked, draws)
	lo := m.CDF(x-1, pool, marked, draws)
	if math.IsNaN(hi) || math.IsNaN(lo) {
		return math.NaN()
	}
	return math.Max(0, hi-lo)
}

func TestCentralCDFMatchesClosedForm(t *testing.T) {
	cases := []struct {
		pool, marked, draws int
	}{
		{20, 7, 12},
		{18, 8, 17},
		{200, 48, 167},
		{35, 0, 10},
		{35, 35, 10},
	}
	for _, tc := range cases {
		lo := max(0, tc.draws-(tc.pool-tc.marked))
		hi := min(tc.marked, tc.draws)
		running := 0.0
		for k := lo; k <= hi; k++ {
			running += centralPMF(k, tc.pool, tc.marked, tc.draws)
			got := Central{}.CDF(k, tc.pool, tc.marked, tc.draws)
			assert.InDelta(t, math.Min(running, 1), got, 1e-9, "pool=%d marked=%d draws=%d k=%d", tc.pool, tc.marked, tc.draws, k)
		}
	}
}

func TestCDFKnownValues(t *testing.T) {
	assert.InDelta(t, 0.25077399380804954, Central{}.CDF(3, 20, 7, 12), 1e-12)
	assert.InDelta(t, 0.8944272445820434, Central{}.CDF(5, 20, 7, 12), 1e-12)
	assert.InDelta(t, 0.02960071134308098, Fisher{Omega: 3}.CDF(3, 20, 7, 12), 1e-12)
	assert.InDelta(t, 8.0/18.0, Central{}.CDF(7, 18, 8, 17), 1e-12)
}

func TestCDFSupportEdges(t *testing.T) {
	m := Central{}
	assert.Equal(t, 0.0, m.CDF(-1, 20, 7, 12))
	assert.Equal(t, 1.0, m.CDF(7, 20, 7, 12))
	assert.Equal(t, 1.0, m.CDF(100, 20, 7, 12))
	// draws exceed the pool
	assert.True(t, math.IsNaN(m.CDF(3, 5, 2, 6)))
	assert.True(t, math.IsNaN(m.CDF(3, 5, -1, 2)))
}

func TestFisherWithUnitOmegaIsCentral(t *testing.T) {
	for k := 0; k <= 7; k++ {
		assert.InDelta(t, Central{}.CDF(k, 20, 7, 12), Fisher{Omega: 1}.CDF(k, 20, 7, 12), 1e-12)
	}
}

func TestFisherOddsShiftMass(t *testing.T) {
	// Favouring marked survivors makes small marked counts less likely.
	low := Fisher{Omega: 0.5}.CDF(4, 40, 15, 20)
	mid := Central{}.CDF(4, 40, 15, 20)
	high := Fisher{Omega: 2}.CDF(4, 40, 15, 20)
	assert.Greater(t, low, mid)
	assert.Greater(t, mid, high)
}

func TestCDFLargePoolIsStable(t *testing.T) {
	// Deep in the tail the weights underflow relative to the mode; the CDF
	// must stay a probability and keep decreasing as marked grows.
	prev := 1.0
	for marked := 100; marked <= 100000; marked *= 10 {
		p := Fisher{Omega: 0.3}.CDF(120, 2000+marked, marked, 1900)
		require.False(t, math.IsNaN(p))
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, prev)
		prev = p
	}
}

func TestNew(t *testing.T) {
	m, err := New("", 0)
	require.NoError(t, err)
	assert.Equal(t, KindCentral, m.Kind())

	m, err = New(KindFisher, 0.4)
	require.NoError(t, err)
	assert.Equal(t, Fisher{Omega: 0.4}, m)
	assert.Equal(t, "fisher(omega=0.4)", Describe(m))

	for _, omega := range []float64{0, -1, math.Inf(1), math.NaN()} {
		_, err = New(KindFisher, omega)
		assert.True(t, errors.Is(err, ErrInvalidOmega), "omega %v", omega)
	}
	_, err = New("binomial", 1)
	assert.Error(t, err)
}

func TestCDFDifferencesMatchPMF(t *testing.T) {
	sum := 0.0
	for x := 0; x <= 7; x++ {
		p := pmfFromCDF(Central{}, x, 20, 7, 12)
		assert.InDelta(t, centralPMF(x, 20, 7, 12), p, 1e-9)
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-9)
	assert.True(t, math.IsNaN(pmfFromCDF(Central{}, 1, 3, 1, 5)))
}
