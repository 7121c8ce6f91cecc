package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

// stateNames maps two-letter codes to full state names for the
// state-level export.
var stateNames = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"DC": "District of Columbia", "FL": "Florida", "GA": "Georgia", "HI": "Hawaii",
	"ID": "Idaho", "IL": "Illinois", "IN": "Indiana", "IA": "Iowa",
	"KS": "Kansas", "KY": "Kentucky", "LA": "Louisiana", "ME": "Maine",
	"MD": "Maryland", "MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota",
	"MS": "Mississippi", "MO": "Missouri", "MT": "Montana", "NE": "Nebraska",
	"NV": "Nevada", "NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico",
	"NY": "New York", "NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio",
	"OK": "Oklahoma", "OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island",
	"SC": "South Carolina", "SD": "South Dakota", "TN": "Tennessee", "TX": "Texas",
	"UT": "Utah", "VT": "Vermont", "VA": "Virginia", "WA": "Washington",
	"WV": "West Virginia", "WI": "Wisconsin", "WY": "Wyoming", "PR": "Puerto Rico",
}

var stateHeader = []string{
	"state_abbr", "state_name",
	"individual_premium_avg", "small_group_premium_avg", "difference_avg",
	"county_count", "year", "age", "metal_tier",
}

// StateRow is the state-level aggregate for one (state, filter) group:
// per-field means over the counties that carry a value, plus the county
// count of the whole group.
type StateRow struct {
	Abbr        string
	Name        string
	Individual  *float64
	SmallGroup  *float64
	Difference  *float64
	CountyCount int
	Filter      premium.FilterSelection
}

// AggregateStates folds county records into per-state means, grouped by
// (state, year, age, metal). Nil county values are excluded from their
// field's mean rather than counted as zero; a group where every county
// lacks a field yields nil for that field.
func AggregateStates(records []premium.Premium) []StateRow {
	type group struct {
		indSum, grpSum, diffSum float64
		indN, grpN, diffN       int
		count                   int
	}
	type groupKey struct {
		abbr   string
		filter premium.FilterSelection
	}

	groups := make(map[groupKey]*group)
	for _, rec := range records {
		k := groupKey{abbr: rec.Key.Parent, filter: rec.Filter}
		g := groups[k]
		if g == nil {
			g = &group{}
			groups[k] = g
		}
		g.count++
		if rec.Individual != nil {
			g.indSum += *rec.Individual
			g.indN++
		}
		if rec.SmallGroup != nil {
			g.grpSum += *rec.SmallGroup
			g.grpN++
		}
		if rec.Difference != nil {
			g.diffSum += *rec.Difference
			g.diffN++
		}
	}

	rows := make([]StateRow, 0, len(groups))
	for k, g := range groups {
		rows = append(rows, StateRow{
			Abbr:        k.abbr,
			Name:        stateName(k.abbr),
			Individual:  meanCents(g.indSum, g.indN),
			SmallGroup:  meanCents(g.grpSum, g.grpN),
			Difference:  meanCents(g.diffSum, g.diffN),
			CountyCount: g.count,
			Filter:      k.filter,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Abbr != b.Abbr {
			return a.Abbr < b.Abbr
		}
		if a.Filter.Year != b.Filter.Year {
			return a.Filter.Year < b.Filter.Year
		}
		if a.Filter.Age != b.Filter.Age {
			return a.Filter.Age < b.Filter.Age
		}
		return a.Filter.Metal < b.Filter.Metal
	})
	return rows
}

// StateCSV aggregates county records and writes the state-level CSV.
func StateCSV(w io.Writer, records []premium.Premium) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(stateHeader); err != nil {
		return fmt.Errorf("export: write state header: %w", err)
	}
	for _, row := range AggregateStates(records) {
		out := []string{
			row.Abbr,
			row.Name,
			cell(row.Individual),
			cell(row.SmallGroup),
			cell(row.Difference),
			strconv.Itoa(row.CountyCount),
			strconv.Itoa(row.Filter.Year),
			strconv.Itoa(row.Filter.Age),
			titleMetal(row.Filter.Metal),
		}
		if err := cw.Write(out); err != nil {
			return fmt.Errorf("export: write state row %s: %w", row.Abbr, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush states: %w", err)
	}
	return nil
}

// WriteStateFile writes the state-level CSV to a file.
func WriteStateFile(path string, records []premium.Premium) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := StateCSV(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	return nil
}

func stateName(abbr string) string {
	if name, ok := stateNames[abbr]; ok {
		return name
	}
	return abbr
}

// meanCents is the mean rounded to cents, like the per-county values.
func meanCents(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	m := math.Round(sum/float64(n)*100) / 100
	return &m
}
