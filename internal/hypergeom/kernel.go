package hypergeom

import "math"

// truncation is the log-weight, relative to the mode, below which terms are
// dropped. The weights are unimodal so every dropped term is smaller still.
const truncation = -50.0

// cdf returns P(X <= k) for a (possibly non-central) hypergeometric X: the
// number of marked items among draws taken from marked+unmarked items, where
// every marked item carries odds exp(logOmega). logOmega == 0 is the central
// distribution.
//
// The weights are accumulated relative to the mode through the ratio
// recurrence f(j+1)/f(j), which avoids evaluating binomial coefficients and
// keeps every term in [0, 1].
func cdf(k, marked, unmarked, draws int, logOmega float64) float64 {
	if marked < 0 || unmarked < 0 || draws < 0 || draws > marked+unmarked {
		return math.NaN()
	}
	lo := max(0, draws-unmarked)
	hi := min(marked, draws)
	if k < lo {
		return 0
	}
	if k >= hi {
		return 1
	}

	ratio := func(j int) float64 {
		return logOmega +
			math.Log(float64(marked-j)) + math.Log(float64(draws-j)) -
			math.Log(float64(j+1)) - math.Log(float64(unmarked-draws+j+1))
	}
	mode := findMode(lo, hi, ratio)

	total, below := 1.0, 0.0
	if mode <= k {
		below = 1
	}
	l := 0.0
	for j := mode; j < hi; j++ {
		l += ratio(j)
		if l < truncation {
			break
		}
		w := math.Exp(l)
		total += w
		if j+1 <= k {
			below += w
		}
	}
	l = 0
	for j := mode; j > lo; j-- {
		l -= ratio(j - 1)
		if l < truncation {
			break
		}
		w := math.Exp(l)
		total += w
		if j-1 <= k {
			below += w
		}
	}
	p := below / total
	if p > 1 {
		p = 1
	}
	return p
}

// findMode returns the smallest j in [lo, hi] at which the weights stop
// increasing. ratio is log f(j+1)/f(j), which is decreasing in j.
func findMode(lo, hi int, ratio func(int) float64) int {
	for lo < hi {
		mid := lo + (hi-lo)/2
		if ratio(mid) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}
