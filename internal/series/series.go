// Package series turns detection records into the detected-extant and
// detected-extinct time series consumed by the estimator.
package series

import (
	"fmt"
	"slices"

	"undetected/pkg/domain"
)

// FirstLastChangedE collapses the calendar to the years in which at least one
// member was last observed, plus the global first and last years. Each
// record's first year is moved up to the next kept year when it falls between
// kept years; last years are always kept by construction.
func FirstLastChangedE(records []domain.Record) ([]int, []domain.Record, error) {
	y0, yf, err := span(records)
	if err != nil {
		return nil, nil, err
	}

	lastYears := make([]int, 0, len(records))
	for _, r := range records {
		if r.LastSeen < yf {
			lastYears = append(lastYears, r.LastSeen)
		}
	}
	slices.Sort(lastYears)
	years := slices.Compact(lastYears)
	if len(years) == 0 || years[0] != y0 {
		years = append([]int{y0}, years...)
	}
	if years[len(years)-1] != yf {
		years = append(years, yf)
	}

	out := make([]domain.Record, len(records))
	for i, r := range records {
		idx, _ := slices.BinarySearch(years, r.FirstSeen)
		r.FirstSeen = years[idx]
		out[i] = r
	}
	return years, out, nil
}

// SEChangedE keeps only the timesteps i at which E increases between i and
// i+1, together with the first and last timestep.
func SEChangedE(s domain.Series) (domain.Series, error) {
	if len(s.S) != len(s.E) {
		return domain.Series{}, fmt.Errorf("series: S has %d entries, E has %d", len(s.S), len(s.E))
	}
	if len(s.S) == 0 {
		return domain.Series{}, domain.ErrEmptySeries
	}
	keep := ChangedEIndices(s.E)
	out := domain.Series{
		S: make([]int, len(keep)),
		E: make([]int, len(keep)),
	}
	if len(s.Years) == len(s.S) {
		out.Years = make([]int, len(keep))
	}
	for j, i := range keep {
		out.S[j] = s.S[i]
		out.E[j] = s.E[i]
		if out.Years != nil {
			out.Years[j] = s.Years[i]
		}
	}
	return out, nil
}

// ChangedEIndices returns the indices kept by SEChangedE in increasing order.
func ChangedEIndices(e []int) []int {
	if len(e) == 0 {
		return nil
	}
	last := len(e) - 1
	idx := []int{0}
	for i := 1; i < last; i++ {
		if e[i+1] > e[i] {
			idx = append(idx, i)
		}
	}
	if idx[len(idx)-1] != last {
		idx = append(idx, last)
	}
	return idx
}

// GetSE counts, for every year, the members detected extant
// (first <= year <= last) and the members already lost (last < year). A nil
// years slice covers every calendar year from the first to the last detection.
func GetSE(records []domain.Record, years []int) (domain.Series, error) {
	y0, yf, err := span(records)
	if err != nil {
		return domain.Series{}, err
	}
	if years == nil {
		years = make([]int, 0, yf-y0+1)
		for y := y0; y <= yf; y++ {
			years = append(years, y)
		}
	}
	out := domain.Series{
		Years: append([]int(nil), years...),
		S:     make([]int, len(years)),
		E:     make([]int, len(years)),
	}
	for i, t := range years {
		for _, r := range records {
			switch {
			case r.LastSeen < t:
				out.E[i]++
			case r.FirstSeen <= t:
				out.S[i]++
			}
		}
	}
	return out, nil
}

// Reduce builds the collapsed series used for estimation: the calendar is
// reduced with FirstLastChangedE and the counts taken at the kept years.
func Reduce(records []domain.Record) (domain.Series, error) {
	years, remapped, err := FirstLastChangedE(records)
	if err != nil {
		return domain.Series{}, err
	}
	return GetSE(remapped, years)
}

// ExtantAt counts the records still being observed in the given year.
func ExtantAt(records []domain.Record, year int) int {
	n := 0
	for _, r := range records {
		if r.FirstSeen <= year && year <= r.LastSeen {
			n++
		}
	}
	return n
}

func span(records []domain.Record) (int, int, error) {
	if len(records) == 0 {
		return 0, 0, domain.ErrEmptyRecords
	}
	y0, yf := records[0].FirstSeen, records[0].LastSeen
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return 0, 0, err
		}
		y0 = min(y0, r.FirstSeen)
		yf = max(yf, r.LastSeen)
	}
	return y0, yf, nil
}
