// Package domain defines the detection records, time series and run records
// shared by the estimator, its drivers and the persistence backends.
package domain

import (
	"encoding/json"
	"time"
)

// Record is the detection history of one population member (a species in a
// herbarium record): the first and last year it was observed.
type Record struct {
	Species   string `json:"species,omitempty"`
	FirstSeen int    `json:"first_seen"`
	LastSeen  int    `json:"last_seen"`
}

// Validate reports whether the record is usable by the preprocessor.
func (r Record) Validate() error {
	if r.FirstSeen > r.LastSeen {
		return ErrInvertedRecord{Species: r.Species, First: r.FirstSeen, Last: r.LastSeen}
	}
	return nil
}

// Series is a reduced or full time series of detected counts. S[t] is the
// number of members known extant at Years[t]; E[t] the number known to have
// stopped being observed by Years[t].
type Series struct {
	Years []int `json:"years"`
	S     []int `json:"S"`
	E     []int `json:"E"`
}

// Len returns the number of timesteps.
func (s Series) Len() int { return len(s.S) }

// Clone returns a deep copy of the series.
func (s Series) Clone() Series {
	return Series{
		Years: append([]int(nil), s.Years...),
		S:     append([]int(nil), s.S...),
		E:     append([]int(nil), s.E...),
	}
}

// RunKind identifies which experiment produced a run record.
type RunKind string

const (
	// RunEstimate is a full per-timestep estimate of U and X.
	RunEstimate RunKind = "estimate"
	// RunBoundarySweep varies the final undetected count U_T.
	RunBoundarySweep RunKind = "boundary_sweep"
	// RunOmegaSweep varies the Fisher odds ratio.
	RunOmegaSweep RunKind = "omega_sweep"
	// RunSpeciesDeletion removes random subsets of the species list.
	RunSpeciesDeletion RunKind = "species_deletion"
	// RunCoverage checks interval calibration against simulated populations.
	RunCoverage RunKind = "coverage"
)

// Table is a rectangular result ready for tabular export.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// RunRecord captures a completed estimator run.
type RunRecord struct {
	ID         string          `json:"id"`
	Kind       RunKind         `json:"kind"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Result     Table           `json:"result"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	DurationMS float64         `json:"duration_ms"`
}
