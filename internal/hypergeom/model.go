// Package hypergeom implements the survival models used by the estimator.
//
// Both models describe how many members of a marked subpopulation (the
// undetected species) are among the survivors drawn from a pool of detected
// and undetected members. The central model gives every member the same odds
// of surviving; Fisher's non-central model weights the marked members by an
// odds ratio omega.
package hypergeom

import (
	"errors"
	"fmt"
	"math"
)

// Kind identifies a survival model variant.
type Kind string

const (
	// KindCentral is the central hypergeometric distribution.
	KindCentral Kind = "central"
	// KindFisher is Fisher's non-central hypergeometric distribution.
	KindFisher Kind = "fisher"
)

// ErrInvalidOmega is returned for a non-positive or non-finite odds ratio.
var ErrInvalidOmega = errors.New("hypergeom: omega must be positive and finite")

// Model evaluates P(X <= k) where X is the number of marked members among
// draws taken without replacement from pool members, marked of which are
// marked. Arguments outside the support return NaN.
type Model interface {
	CDF(k, pool, marked, draws int) float64
	Kind() Kind
}

// Central is the central hypergeometric survival model.
type Central struct{}

// Kind implements Model.
func (Central) Kind() Kind { return KindCentral }

// CDF implements Model.
func (Central) CDF(k, pool, marked, draws int) float64 {
	return cdf(k, marked, pool-marked, draws, 0)
}

// Fisher is Fisher's non-central hypergeometric survival model. Omega is the
// survival odds of a marked (undetected) member relative to an unmarked one.
type Fisher struct {
	Omega float64
}

// Kind implements Model.
func (Fisher) Kind() Kind { return KindFisher }

// CDF implements Model.
func (f Fisher) CDF(k, pool, marked, draws int) float64 {
	return cdf(k, marked, pool-marked, draws, math.Log(f.Omega))
}

// New returns the model for kind. Omega is only used by KindFisher; an empty
// kind selects the central model.
func New(kind Kind, omega float64) (Model, error) {
	switch kind {
	case "", KindCentral:
		return Central{}, nil
	case KindFisher:
		if omega <= 0 || math.IsNaN(omega) || math.IsInf(omega, 0) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOmega, omega)
		}
		return Fisher{Omega: omega}, nil
	default:
		return nil, fmt.Errorf("hypergeom: unknown model %q", kind)
	}
}

// Describe returns a short human-readable label for m.
func Describe(m Model) string {
	if f, ok := m.(Fisher); ok {
		return fmt.Sprintf("%s(omega=%g)", f.Kind(), f.Omega)
	}
	return string(m.Kind())
}
