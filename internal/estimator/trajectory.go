package estimator

import (
	"fmt"

	"undetected/internal/series"
)

// Path is one sampled trajectory.
type Path struct {
	// U holds U_0..U_T; U[T] is the boundary value.
	U []int
	// Excursions counts the steps that entered the infeasible region.
	Excursions int
	// Evaluations counts mid-P evaluations spent on the walk.
	Evaluations int
}

// Trajectory walks the timeline backwards from U_T = uT, drawing one
// confidence level per step from draw. The result is deterministic for a
// fixed sequence of draws.
func (inv *Inverter) Trajectory(tl series.Timeline, uT int, draw func() float64) (Path, error) {
	if uT < 0 {
		return Path{}, fmt.Errorf("%w: U_T=%d", ErrNegativeInput, uT)
	}
	T := tl.Steps()
	path := Path{U: make([]int, T+1)}
	path.U[T] = uT

	impossible := false
	for t := T; t >= 1; t-- {
		p := probe{inv: inv, step: Step{S0: tl.S[t-1], S1: tl.S[t], U1: path.U[t], D0: tl.D[t-1]}}
		alpha := draw()
		if err := checkInputs(p.step, alpha); err != nil {
			return Path{}, fmt.Errorf("timestep %d: %w", t, err)
		}
		was := impossible
		u0, flag, err := p.guard(alpha, impossible)
		path.Evaluations += p.evals
		if err != nil {
			return Path{}, fmt.Errorf("timestep %d: %w", t, err)
		}
		if flag && !was {
			path.Excursions++
		}
		impossible = flag
		path.U[t-1] = u0
	}
	return path, nil
}

// MinPossible returns the smallest U_t consistent with the boundary value and
// the discoveries after t: U_T + d_t + ... + d_{T-1}.
func MinPossible(tl series.Timeline, uT int) []int {
	T := tl.Steps()
	out := make([]int, T+1)
	out[T] = uT
	for t := T - 1; t >= 0; t-- {
		out[t] = out[t+1] + tl.D[t]
	}
	return out
}
