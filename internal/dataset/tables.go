package dataset

import (
	"strconv"

	"undetected/internal/estimator"
	"undetected/internal/simulate"
	"undetected/pkg/domain"
)

// Result table headers.
var (
	EstimateHeader = []string{"year", "S", "E", "U_mean", "X_mean", "U_lo", "U_hi", "X_lo", "X_hi"}
	BoundaryHeader = []string{"U_T", "rate_mean", "rate_lo", "rate_hi", "nreps"}
	OmegaHeader    = []string{"omega", "N_mean", "N_lo", "N_hi", "nreps"}
	DeletionHeader = []string{"proportion", "rate_mean", "rate_lo", "rate_hi", "subsets"}
	CoverageHeader = []string{"percentile", "nominal", "covered", "reps", "coverage"}
)

// EstimateTable renders one row per timestep of an estimate summary.
func EstimateTable(sum estimator.Summary) domain.Table {
	t := domain.Table{Header: cloneHeader(EstimateHeader), Rows: make([][]string, len(sum.U))}
	for i := range sum.U {
		t.Rows[i] = []string{
			strconv.Itoa(sum.Years[i]),
			strconv.Itoa(sum.S[i]),
			strconv.Itoa(sum.E[i]),
			FormatFloat(sum.U[i].Mean),
			FormatFloat(sum.X[i].Mean),
			FormatFloat(sum.U[i].Lo),
			FormatFloat(sum.U[i].Hi),
			FormatFloat(sum.X[i].Lo),
			FormatFloat(sum.X[i].Hi),
		}
	}
	return t
}

// BandRow renders a parameter value, a band and a count as a table row.
func BandRow(param string, b estimator.Band, n int) []string {
	return []string{param, FormatFloat(b.Mean), FormatFloat(b.Lo), FormatFloat(b.Hi), strconv.Itoa(n)}
}

func cloneHeader(h []string) []string {
	return append([]string(nil), h...)
}

// NewTable returns an empty table with a copy of header.
func NewTable(header []string) domain.Table {
	return domain.Table{Header: cloneHeader(header)}
}

// CoverageTable renders one row per nominal percentile of a coverage check.
func CoverageTable(res simulate.CoverageResult) domain.Table {
	t := NewTable(CoverageHeader)
	for i, p := range res.Percentiles {
		t.Rows = append(t.Rows, []string{
			FormatFloat(p),
			FormatFloat(p / 100),
			strconv.Itoa(res.Covered[i]),
			strconv.Itoa(res.Simulations),
			FormatFloat(res.Rate(i)),
		})
	}
	return t
}
