package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"ldes-markets/internal/model"
)

// Record is one row of a long-format series file: a value for (time, scenario) and, for
// availability files, the technology it applies to.
type Record struct {
	Time       string
	Scenario   string
	Technology string
	Value      float64
}

// ReadLongCSV parses a long-format table. The header must name the columns time, scenario
// and value; a technology column is optional. Column order is free.
func ReadLongCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty series file", model.ErrDataInconsistency)
		}
		return nil, err
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range []string{"time", "scenario", "value"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("%w: missing required column %q", model.ErrDataInconsistency, req)
		}
	}
	techCol, hasTech := col["technology"]

	var out []Record
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		v, err := strconv.ParseFloat(strings.TrimSpace(row[col["value"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad value %q", model.ErrDataInconsistency, line, row[col["value"]])
		}
		rec := Record{
			Time:     strings.TrimSpace(row[col["time"]]),
			Scenario: strings.TrimSpace(row[col["scenario"]]),
			Value:    v,
		}
		if hasTech {
			rec.Technology = strings.TrimSpace(row[techCol])
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadLongCSVFile is ReadLongCSV on a path. A missing optional file yields (nil, nil).
func ReadLongCSVFile(path string, optional bool) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	recs, err := ReadLongCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// axes records first-appearance order of times and scenarios.
type axes struct {
	times     []string
	scenarios []string
	tIdx      map[string]int
	oIdx      map[string]int
}

func axesFrom(recs []Record, keep map[string]bool) *axes {
	a := &axes{tIdx: map[string]int{}, oIdx: map[string]int{}}
	for _, r := range recs {
		if keep != nil && !keep[r.Scenario] {
			continue
		}
		if _, ok := a.tIdx[r.Time]; !ok {
			a.tIdx[r.Time] = len(a.times)
			a.times = append(a.times, r.Time)
		}
		if _, ok := a.oIdx[r.Scenario]; !ok {
			a.oIdx[r.Scenario] = len(a.scenarios)
			a.scenarios = append(a.scenarios, r.Scenario)
		}
	}
	return a
}

// fill lays records onto a dense series. Every (time, scenario) cell must be present exactly
// once; rows for scenarios outside the axes are skipped (they were filtered out).
func (a *axes) fill(name string, recs []Record) (model.Series, error) {
	s := model.NewSeries(len(a.times), len(a.scenarios))
	seen := make([]bool, s.Len())
	for _, r := range recs {
		o, ok := a.oIdx[r.Scenario]
		if !ok {
			continue
		}
		t, ok := a.tIdx[r.Time]
		if !ok {
			return s, fmt.Errorf("%w: %s: unknown time step %q", model.ErrDataInconsistency, name, r.Time)
		}
		i := s.Index(t, o)
		if seen[i] {
			return s, fmt.Errorf("%w: %s: duplicate entry for (%s, %s)", model.ErrDataInconsistency, name, r.Time, r.Scenario)
		}
		seen[i] = true
		s.Values[i] = r.Value
	}
	for i, ok := range seen {
		if !ok {
			t, o := i/s.NO, i%s.NO
			return s, fmt.Errorf("%w: %s: missing entry for (%s, %s)", model.ErrDataInconsistency, name, a.times[t], a.scenarios[o])
		}
	}
	return s, nil
}
