// Package dataset reads detection records and detected-count series from CSV
// and renders result tables back to CSV and JSON.
package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"undetected/pkg/domain"
)

// ErrMissingColumn is returned when a required header column is absent.
var ErrMissingColumn = errors.New("dataset: missing column")

var (
	speciesColumns = []string{"species", "name", "spp"}
	firstColumns   = []string{"first", "frst", "first_seen", "first_year"}
	lastColumns    = []string{"last", "last_seen", "last_year"}
)

// ReadRecords parses detection records from CSV with a header naming the
// species, first and last columns. The species column is optional.
func ReadRecords(r io.Reader) ([]domain.Record, error) {
	rows, header, err := readAll(r)
	if err != nil {
		return nil, err
	}
	species := lookup(header, speciesColumns...)
	first := lookup(header, firstColumns...)
	last := lookup(header, lastColumns...)
	if first < 0 || last < 0 {
		return nil, fmt.Errorf("%w: need first and last, have %v", ErrMissingColumn, header)
	}

	out := make([]domain.Record, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		rec := domain.Record{}
		if species >= 0 {
			rec.Species = strings.TrimSpace(row[species])
		}
		if rec.FirstSeen, err = atoi(row[first], line, header[first]); err != nil {
			return nil, err
		}
		if rec.LastSeen, err = atoi(row[last], line, header[last]); err != nil {
			return nil, err
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, domain.ErrEmptyRecords
	}
	return out, nil
}

// ReadSeries parses a year,S,E series from CSV. The year column is optional;
// without it timesteps are numbered from zero.
func ReadSeries(r io.Reader) (domain.Series, error) {
	rows, header, err := readAll(r)
	if err != nil {
		return domain.Series{}, err
	}
	year := lookup(header, "year", "t")
	s := lookup(header, "S")
	e := lookup(header, "E")
	if s < 0 || e < 0 {
		return domain.Series{}, fmt.Errorf("%w: need S and E, have %v", ErrMissingColumn, header)
	}

	out := domain.Series{S: make([]int, len(rows)), E: make([]int, len(rows))}
	if year >= 0 {
		out.Years = make([]int, len(rows))
	}
	for i, row := range rows {
		line := i + 2
		if year >= 0 {
			if out.Years[i], err = atoi(row[year], line, header[year]); err != nil {
				return domain.Series{}, err
			}
		}
		if out.S[i], err = atoi(row[s], line, "S"); err != nil {
			return domain.Series{}, err
		}
		if out.E[i], err = atoi(row[e], line, "E"); err != nil {
			return domain.Series{}, err
		}
	}
	if len(rows) == 0 {
		return domain.Series{}, domain.ErrEmptySeries
	}
	return out, nil
}

// WriteSeries renders a series as year,S,E.
func WriteSeries(w io.Writer, s domain.Series) error {
	t := domain.Table{Header: []string{"year", "S", "E"}}
	for i := range s.S {
		y := i
		if s.Years != nil {
			y = s.Years[i]
		}
		t.Rows = append(t.Rows, []string{strconv.Itoa(y), strconv.Itoa(s.S[i]), strconv.Itoa(s.E[i])})
	}
	return WriteTable(w, t)
}

// WriteTable renders t as CSV with its header on the first line.
func WriteTable(w io.Writer, t domain.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Header); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return fmt.Errorf("dataset: row %d has %d fields, header has %d", i, len(row), len(t.Header))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// RenderCSV returns the CSV bytes of t.
func RenderCSV(t domain.Table) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := WriteTable(buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderJSON returns t as a list of objects keyed by header, with numeric
// fields decoded as numbers.
func RenderJSON(t domain.Table) ([]byte, error) {
	rows := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		obj := make(map[string]any, len(t.Header))
		for j, col := range t.Header {
			if j >= len(row) {
				break
			}
			if v, err := strconv.ParseFloat(row[j], 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
				obj[col] = v
			} else {
				obj[col] = row[j]
			}
		}
		rows[i] = obj
	}
	return json.Marshal(map[string]any{"header": t.Header, "rows": rows})
}

// FormatFloat renders v with the shortest exact representation.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func readAll(r io.Reader) ([][]string, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: empty input", ErrMissingColumn)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("dataset: %w", err)
	}
	return rows, header, nil
}

func lookup(header []string, names ...string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}

func atoi(field string, line int, column string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil {
		return 0, fmt.Errorf("dataset: line %d column %s: %w", line, column, err)
	}
	return v, nil
}
