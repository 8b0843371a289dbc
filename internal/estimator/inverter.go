// Package estimator samples the undetected-extant trajectory U_0..U_T
// backwards from a boundary value U_T by repeatedly inverting a mid-P
// adjusted hypergeometric CDF.
package estimator

import (
	"fmt"
	"math"

	"undetected/internal/hypergeom"
)

// DefaultMaxDoublings bounds the bracketing phase of the inversion.
const DefaultMaxDoublings = 60

// Step is one backward transition: S0 and S1 are the detected-extant counts
// at the earlier and later timestep, U1 the undetected-extant count at the
// later timestep and D0 the number of discoveries in between.
type Step struct {
	S0, S1, U1, D0 int
}

// MinPossible is the smallest U0 consistent with the step: every member
// undetected at the later timestep, and every member discovered since, was
// already present and undetected.
func (s Step) MinPossible() int { return s.U1 + s.D0 }

func (s Step) validate() error {
	if s.S0 < 0 || s.S1 < 0 || s.U1 < 0 || s.D0 < 0 {
		return fmt.Errorf("%w: S0=%d S1=%d U1=%d d0=%d", ErrNegativeInput, s.S0, s.S1, s.U1, s.D0)
	}
	return nil
}

// Inverter finds confidence bounds on U0 for a survival model. It is safe for
// concurrent use.
type Inverter struct {
	model        hypergeom.Model
	maxDoublings int
}

// Option configures an Inverter.
type Option func(*Inverter)

// WithMaxDoublings overrides DefaultMaxDoublings. Non-positive values are
// ignored.
func WithMaxDoublings(n int) Option {
	return func(inv *Inverter) {
		if n > 0 {
			inv.maxDoublings = n
		}
	}
}

// NewInverter returns an inverter over model; a nil model selects the central
// hypergeometric distribution.
func NewInverter(model hypergeom.Model, opts ...Option) *Inverter {
	if model == nil {
		model = hypergeom.Central{}
	}
	inv := &Inverter{model: model, maxDoublings: DefaultMaxDoublings}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Model returns the survival model used by the inverter.
func (inv *Inverter) Model() hypergeom.Model { return inv.model }

// MidP evaluates the mid-P adjusted probability of observing at most
// U1+D0 undetected members among the S1+U1 survivors when the earlier
// timestep held u0 undetected members. It is non-increasing in u0.
func (inv *Inverter) MidP(s Step, u0 int) float64 {
	k := s.U1 + s.D0
	pool, draws := u0+s.S0, s.S1+s.U1
	return 0.5 * (inv.model.CDF(k, pool, u0, draws) + inv.model.CDF(k-1, pool, u0, draws))
}

// Bound returns the largest U0 >= s.MinPossible() whose mid-P is at least
// alpha. When even the minimum fails the test the minimum is returned; use
// Guard to handle that region.
func (inv *Inverter) Bound(s Step, alpha float64) (int, error) {
	if err := checkInputs(s, alpha); err != nil {
		return 0, err
	}
	p := probe{inv: inv, step: s}
	return p.bound(alpha)
}

// Guard is the inversion used by the backward recursion. impossible reports
// whether the previous step already left the feasible region. If the minimum
// possible U0 fails the mid-P test, the result is one below the minimum on
// the first such step and the minimum itself on consecutive ones, so a
// trajectory never walks two steps into the infeasible region.
func (inv *Inverter) Guard(s Step, alpha float64, impossible bool) (int, bool, error) {
	if err := checkInputs(s, alpha); err != nil {
		return 0, impossible, err
	}
	p := probe{inv: inv, step: s}
	return p.guard(alpha, impossible)
}

func checkInputs(s Step, alpha float64) error {
	if err := s.validate(); err != nil {
		return err
	}
	if !(alpha > 0 && alpha < 1) {
		return fmt.Errorf("%w: %v", ErrInvalidAlpha, alpha)
	}
	return nil
}

// probe evaluates mid-P for a single step and counts model evaluations.
type probe struct {
	inv   *Inverter
	step  Step
	evals int
}

func (p *probe) midP(u0 int) (float64, error) {
	p.evals++
	v := p.inv.MidP(p.step, u0)
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: S0=%d S1=%d U1=%d d0=%d U0=%d",
			ErrUndefinedMidP, p.step.S0, p.step.S1, p.step.U1, p.step.D0, u0)
	}
	return v, nil
}

func (p *probe) guard(alpha float64, impossible bool) (int, bool, error) {
	least := p.step.MinPossible()
	v, err := p.midP(least)
	if err != nil {
		return 0, impossible, err
	}
	var u0 int
	switch {
	case v >= alpha:
		u0, err = p.bound(alpha)
		if err != nil {
			return 0, impossible, err
		}
		if u0 > least {
			impossible = false
		}
	case impossible:
		u0 = least
	default:
		u0 = least - 1
		impossible = true
	}
	return max(0, u0), impossible, nil
}

func (p *probe) bound(alpha float64) (int, error) {
	lo := p.step.MinPossible()
	var hi int
	width := 1
	for doublings := 0; ; doublings++ {
		if doublings >= p.inv.maxDoublings {
			return 0, fmt.Errorf("%w: no U0 above %d rejects alpha=%v after %d doublings",
				ErrBracketDiverged, lo, alpha, doublings)
		}
		hi = lo + width
		v, err := p.midP(hi)
		if err != nil {
			return 0, err
		}
		if v < alpha {
			break
		}
		lo = hi
		width *= 2
	}

	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		v, err := p.midP(mid)
		if err != nil {
			return 0, err
		}
		if v == alpha {
			lo = mid
			break
		}
		if v < alpha {
			hi = mid
		} else {
			lo = mid
		}
	}
	return max(0, lo), nil
}
