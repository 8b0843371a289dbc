// Package simulate generates synthetic detected/undetected populations with a
// known history and measures how often the estimator's intervals cover the
// true initial undetected count.
package simulate

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"undetected/pkg/domain"
)

// ErrInvalidScenario is returned for negative sizes or mismatched schedules.
var ErrInvalidScenario = errors.New("simulate: invalid scenario")

// Scenario fixes the initial population and the per-step schedule of
// survivors and detections. Once the schedule runs out every step loses one
// member and detects one undetected member, until nothing is left undetected.
type Scenario struct {
	U0, S0     int
	Survivors  []int
	Detections []int
}

// Validate checks the scenario before simulation.
func (sc Scenario) Validate() error {
	if sc.U0 < 0 || sc.S0 < 0 {
		return fmt.Errorf("%w: U0=%d S0=%d", ErrInvalidScenario, sc.U0, sc.S0)
	}
	if len(sc.Survivors) != len(sc.Detections) {
		return fmt.Errorf("%w: %d survivor counts for %d detection counts",
			ErrInvalidScenario, len(sc.Survivors), len(sc.Detections))
	}
	prev := sc.U0 + sc.S0
	for i, n := range sc.Survivors {
		if n < 0 || n > prev {
			return fmt.Errorf("%w: %d survivors from %d members at step %d", ErrInvalidScenario, n, prev, i)
		}
		if sc.Detections[i] < 0 {
			return fmt.Errorf("%w: negative detections at step %d", ErrInvalidScenario, i)
		}
		prev = n
	}
	return nil
}

// Population is one simulated history. S and E are detected extant and
// extinct, U and X undetected extant and extinct.
type Population struct {
	S, E, U, X []int
}

// Series returns the detected part of the history.
func (p Population) Series() domain.Series {
	years := make([]int, len(p.S))
	for i := range years {
		years[i] = i
	}
	return domain.Series{
		Years: years,
		S:     append([]int(nil), p.S...),
		E:     append([]int(nil), p.E...),
	}
}

// Simulate runs the scenario until no undetected member remains. Survival is
// a hypergeometric draw of the scheduled number of survivors from the
// detected and undetected members alike.
func Simulate(sc Scenario, rng *rand.Rand) (Population, error) {
	if err := sc.Validate(); err != nil {
		return Population{}, err
	}
	p := Population{S: []int{sc.S0}, E: []int{0}, U: []int{sc.U0}, X: []int{0}}
	for t := 1; ; t++ {
		s, e, u, x := p.S[t-1], p.E[t-1], p.U[t-1], p.X[t-1]
		var survivors, detections int
		if t < len(sc.Survivors) {
			survivors, detections = sc.Survivors[t-1], sc.Detections[t-1]
		} else {
			survivors, detections = max(0, s+u-1), 1
		}

		ut := Hypergeometric(rng, s+u, u, survivors)
		st := survivors - ut
		e += s - st
		x += u - ut

		done := detections >= ut
		if done {
			st += ut
			ut = 0
		} else {
			st += detections
			ut -= detections
		}
		p.S = append(p.S, st)
		p.E = append(p.E, e)
		p.U = append(p.U, ut)
		p.X = append(p.X, x)
		if done {
			return p, nil
		}
	}
}

// BirdsLike is a scenario sized like a 133-step national bird record: 167
// detected and 48 undetected species at the start, with the survivor and
// detection counts of that record.
func BirdsLike() Scenario {
	return Scenario{
		U0: 48,
		S0: 167,
		Detections: []int{
			0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 1, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 1, 1, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 2, 0, 2, 3, 2, 2, 0, 0, 0,
			1, 1, 1, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1,
		},
		Survivors: []int{
			213, 213, 213, 212, 212, 212, 211, 211, 210, 209, 209, 208, 208, 207, 207, 205, 205, 205, 205, 205,
			205, 205, 205, 203, 202, 202, 202, 202, 201, 201, 201, 201, 201, 200, 200, 200, 200, 196, 196, 196,
			196, 196, 196, 196, 195, 195, 195, 195, 195, 193, 191, 191, 191, 190, 189, 189, 187, 187, 187, 187,
			186, 186, 186, 186, 186, 186, 186, 185, 185, 185, 182, 182, 182, 182, 182, 182, 182, 182, 153, 153,
			152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 152, 146, 144,
			144, 144, 144, 144, 144, 144, 144, 144, 144, 144, 144, 144, 144, 144, 144, 141, 141, 141, 140, 139,
			139, 139, 139, 138, 138, 138, 138, 138, 138, 137, 136, 136, 136,
		},
	}
}

// Hypergeometric draws the number of marked members among draws taken
// without replacement from pool members, marked of which are marked.
func Hypergeometric(rng *rand.Rand, pool, marked, draws int) int {
	if draws > pool-draws {
		// Sampling the complement is shorter.
		return marked - Hypergeometric(rng, pool, marked, pool-draws)
	}
	got := 0
	for i := 0; i < draws; i++ {
		if rng.IntN(pool-i) < marked-got {
			got++
		}
	}
	return got
}
