package series

import (
	"fmt"

	"undetected/pkg/domain"
)

// Timeline is a validated series together with the per-step quantities the
// backward recursion needs. Step t covers the transition from timestep t to
// t+1, so the derived slices have one entry fewer than S and E.
type Timeline struct {
	Years []int
	S     []int
	E     []int
	// D[t] is the number of members first detected between t and t+1.
	D []int
	// Extinctions[t] is the number of detected members lost between t and t+1.
	Extinctions []int
	// Survivors[t] is the number of members detected at t that survive to t+1.
	Survivors []int
}

// Steps returns the number of transitions T; timesteps run 0..T.
func (tl Timeline) Steps() int { return len(tl.D) }

// Validate checks the invariants of a detected-count series: matching lengths,
// at least two timesteps, non-negative counts, non-decreasing E and
// non-negative discoveries.
func Validate(s domain.Series) error {
	if len(s.S) != len(s.E) {
		return fmt.Errorf("series: S has %d entries, E has %d", len(s.S), len(s.E))
	}
	if s.Years != nil && len(s.Years) != len(s.S) {
		return fmt.Errorf("series: %d years for %d timesteps", len(s.Years), len(s.S))
	}
	if len(s.S) < 2 {
		return domain.ErrEmptySeries
	}
	for t := range s.S {
		if s.S[t] < 0 || s.E[t] < 0 {
			return fmt.Errorf("%w: S=%d E=%d at timestep %d", domain.ErrNegativeCount, s.S[t], s.E[t], t)
		}
		if t == 0 {
			continue
		}
		if s.E[t] < s.E[t-1] {
			return fmt.Errorf("%w: E falls from %d to %d at timestep %d", domain.ErrNonMonotonicE, s.E[t-1], s.E[t], t)
		}
		if d := s.S[t] - s.S[t-1] + s.E[t] - s.E[t-1]; d < 0 {
			return fmt.Errorf("%w: d=%d at timestep %d", domain.ErrNegativeDiscovery, d, t-1)
		}
	}
	return nil
}

// Derive validates s and computes discoveries, extinctions and survivors for
// each transition.
func Derive(s domain.Series) (Timeline, error) {
	if err := Validate(s); err != nil {
		return Timeline{}, err
	}
	n := len(s.S) - 1
	tl := Timeline{
		S:           append([]int(nil), s.S...),
		E:           append([]int(nil), s.E...),
		D:           make([]int, n),
		Extinctions: make([]int, n),
		Survivors:   make([]int, n),
	}
	if s.Years != nil {
		tl.Years = append([]int(nil), s.Years...)
	} else {
		tl.Years = make([]int, len(s.S))
		for i := range tl.Years {
			tl.Years[i] = i
		}
	}
	for t := 0; t < n; t++ {
		tl.Extinctions[t] = s.E[t+1] - s.E[t]
		tl.D[t] = s.S[t+1] - s.S[t] + tl.Extinctions[t]
		tl.Survivors[t] = s.S[t] - tl.Extinctions[t]
	}
	return tl, nil
}

// Series returns the detected counts of the timeline.
func (tl Timeline) Series() domain.Series {
	return domain.Series{
		Years: append([]int(nil), tl.Years...),
		S:     append([]int(nil), tl.S...),
		E:     append([]int(nil), tl.E...),
	}
}
