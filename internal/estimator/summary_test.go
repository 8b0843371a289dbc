package estimator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	assert.InDelta(t, 2.5, Percentile(values, 50), 1e-12)
	assert.InDelta(t, 1.075, Percentile(values, 2.5), 1e-12)
	assert.InDelta(t, 3.925, Percentile(values, 97.5), 1e-12)
	assert.Equal(t, 1.0, Percentile(values, 0))
	assert.Equal(t, 4.0, Percentile(values, 100))
	assert.Equal(t, 7.0, Percentile([]float64{7}, 2.5))
	assert.True(t, math.IsNaN(Percentile(nil, 50)))
}

func TestTails(t *testing.T) {
	lo, hi, err := Tails(95)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, lo, 1e-12)
	assert.InDelta(t, 97.5, hi, 1e-12)

	for _, p := range []float64{0, 100, -5, math.NaN()} {
		_, _, err = Tails(p)
		assert.ErrorIs(t, err, ErrInvalidPercentile, "percentile %v", p)
	}
}

func TestSummarize(t *testing.T) {
	ens := &Ensemble{
		Timeline:   timeline(t, []int{10, 12}, []int{0, 1}),
		UT:         5,
		Paths:      [][]int{{8, 5}, {10, 5}, {18, 5}},
		Excursions: []int{0, 1, 0},
	}
	sum, err := Summarize(ens, 50)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Replicates)
	assert.Equal(t, 1, sum.Excursions)
	assert.InDelta(t, 12, sum.U[0].Mean, 1e-12)
	assert.InDelta(t, 9, sum.U[0].Lo, 1e-12)
	assert.InDelta(t, 14, sum.U[0].Hi, 1e-12)

	// X_0 = N - E_0 - S_0 - U_0 is zero by construction.
	assert.Equal(t, Band{}, sum.X[0])
	assert.InDelta(t, 4, sum.X[1].Mean, 1e-12)
	assert.InDelta(t, 1, sum.X[1].Lo, 1e-12)
	assert.InDelta(t, 6, sum.X[1].Hi, 1e-12)

	assert.InDelta(t, 22, sum.Total.Mean, 1e-12)
	assert.InDelta(t, (1.0/18+3.0/20+11.0/28)/3, sum.Rate.Mean, 1e-12)
	assert.InDelta(t, 3.0/20, Percentile([]float64{1.0 / 18, 3.0 / 20, 11.0 / 28}, 50), 1e-12)
}

func TestSummarizeEmpty(t *testing.T) {
	_, err := Summarize(&Ensemble{Timeline: timeline(t, []int{1, 1}, []int{0, 0})}, 95)
	assert.ErrorIs(t, err, ErrInvalidReplicates)
}

func TestRateOfEmptyPopulation(t *testing.T) {
	ens := &Ensemble{Timeline: timeline(t, []int{0, 0}, []int{0, 0}), Paths: [][]int{{0, 0}}}
	assert.Equal(t, 0.0, ens.Rate(0))
	assert.Equal(t, 0, ens.Total(0))
}
