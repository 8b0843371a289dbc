package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"undetected/internal/estimator"
	"undetected/internal/simulate"
)

func TestBandRow(t *testing.T) {
	row := BandRow("0.5", estimator.Band{Mean: 27.25, Lo: 11, Hi: 40}, 200)
	assert.Equal(t, []string{"0.5", "27.25", "11", "40", "200"}, row)

	table := NewTable(OmegaHeader)
	table.Header[0] = "changed"
	assert.Equal(t, "omega", OmegaHeader[0], "NewTable must copy the header")
}

func TestCoverageTable(t *testing.T) {
	table := CoverageTable(simulate.CoverageResult{
		Percentiles: []float64{90, 50},
		Covered:     []int{9, 4},
		Simulations: 10,
	})
	assert.Equal(t, CoverageHeader, table.Header)
	assert.Equal(t, [][]string{
		{"90", "0.9", "9", "10", "0.9"},
		{"50", "0.5", "4", "10", "0.4"},
	}, table.Rows)
}
