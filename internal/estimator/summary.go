package estimator

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"undetected/internal/series"
)

// Ensemble holds the sampled trajectories of one run. Paths[i] is replicate
// i's U_0..U_T.
type Ensemble struct {
	Timeline   series.Timeline
	UT         int
	Paths      [][]int
	Excursions []int
}

// Total returns N_total = S_0 + E_0 + U_0 for replicate i.
func (e *Ensemble) Total(i int) int {
	return e.Timeline.S[0] + e.Timeline.E[0] + e.Paths[i][0]
}

// Rate returns the extinction rate (N_total - S_T - U_T) / N_total for
// replicate i. An empty population has rate 0.
func (e *Ensemble) Rate(i int) float64 {
	n := e.Total(i)
	if n == 0 {
		return 0
	}
	T := e.Timeline.Steps()
	return float64(n-e.Timeline.S[T]-e.Paths[i][T]) / float64(n)
}

// Band is a mean with lower and upper percentile bounds.
type Band struct {
	Mean float64 `json:"mean"`
	Lo   float64 `json:"lo"`
	Hi   float64 `json:"hi"`
}

// Summary reduces an ensemble per timestep.
type Summary struct {
	Years      []int   `json:"years"`
	S          []int   `json:"S"`
	E          []int   `json:"E"`
	U          []Band  `json:"U"`
	X          []Band  `json:"X"`
	Total      Band    `json:"N_total"`
	Rate       Band    `json:"extinction_rate"`
	Replicates int     `json:"replicates"`
	Percentile float64 `json:"percentile"`
	Excursions int     `json:"excursions"`
}

// Tails returns the lower and upper percentiles of a central interval, e.g.
// 2.5 and 97.5 for 95.
func Tails(percentile float64) (float64, float64, error) {
	if !(percentile > 0 && percentile < 100) {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidPercentile, percentile)
	}
	half := (100 - percentile) / 2
	return half, 100 - half, nil
}

// Percentile returns the p-th percentile of sorted by linear interpolation
// between order statistics at rank p/100*(n-1). sorted must be ascending and
// non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	rank := p / 100 * float64(n-1)
	i := int(math.Floor(rank))
	if i >= n-1 {
		return sorted[n-1]
	}
	if i < 0 {
		return sorted[0]
	}
	frac := rank - float64(i)
	return sorted[i] + frac*(sorted[i+1]-sorted[i])
}

// BandOf computes the mean and central percentile interval of values.
func BandOf(values []float64, percentile float64) (Band, error) {
	lo, hi, err := Tails(percentile)
	if err != nil {
		return Band{}, err
	}
	if len(values) == 0 {
		return Band{}, ErrInvalidReplicates
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return Band{
		Mean: stat.Mean(values, nil),
		Lo:   Percentile(sorted, lo),
		Hi:   Percentile(sorted, hi),
	}, nil
}

// Summarize reduces the ensemble to per-timestep bands for U and
// X_t = N_total - E_t - S_t - U_t and to bands for N_total and the extinction
// rate.
func Summarize(e *Ensemble, percentile float64) (Summary, error) {
	n := len(e.Paths)
	if n == 0 {
		return Summary{}, ErrInvalidReplicates
	}
	tl := e.Timeline
	steps := tl.Steps() + 1
	sum := Summary{
		Years:      slices.Clone(tl.Years),
		S:          slices.Clone(tl.S),
		E:          slices.Clone(tl.E),
		U:          make([]Band, steps),
		X:          make([]Band, steps),
		Replicates: n,
		Percentile: percentile,
	}
	for _, x := range e.Excursions {
		sum.Excursions += x
	}

	totals := make([]float64, n)
	rates := make([]float64, n)
	for i := range e.Paths {
		totals[i] = float64(e.Total(i))
		rates[i] = e.Rate(i)
	}
	var err error
	if sum.Total, err = BandOf(totals, percentile); err != nil {
		return Summary{}, err
	}
	if sum.Rate, err = BandOf(rates, percentile); err != nil {
		return Summary{}, err
	}

	us := make([]float64, n)
	xs := make([]float64, n)
	for t := 0; t < steps; t++ {
		for i, path := range e.Paths {
			us[i] = float64(path[t])
			xs[i] = totals[i] - float64(tl.E[t]+tl.S[t]+path[t])
		}
		if sum.U[t], err = BandOf(us, percentile); err != nil {
			return Summary{}, err
		}
		if sum.X[t], err = BandOf(xs, percentile); err != nil {
			return Summary{}, err
		}
	}
	return sum, nil
}
