package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRecords is returned when no detection records are supplied.
	ErrEmptyRecords = errors.New("domain: no detection records")
	// ErrEmptySeries is returned when a series has fewer than two timesteps.
	ErrEmptySeries = errors.New("domain: series needs at least two timesteps")
	// ErrNegativeCount is returned for negative S or E entries.
	ErrNegativeCount = errors.New("domain: negative count")
	// ErrNonMonotonicE is returned when the detected-extinct count decreases.
	ErrNonMonotonicE = errors.New("domain: detected-extinct count decreases")
	// ErrNegativeDiscovery is returned when a step implies negative discoveries.
	ErrNegativeDiscovery = errors.New("domain: negative discoveries")
	// ErrRunNotFound is returned when a run ID is unknown to the store.
	ErrRunNotFound = errors.New("domain: run not found")
)

// ErrInvertedRecord reports a record whose first detection follows its last.
type ErrInvertedRecord struct {
	Species     string
	First, Last int
}

func (e ErrInvertedRecord) Error() string {
	if e.Species == "" {
		return fmt.Sprintf("domain: first detection %d after last detection %d", e.First, e.Last)
	}
	return fmt.Sprintf("domain: %s first detected %d after last detection %d", e.Species, e.First, e.Last)
}
