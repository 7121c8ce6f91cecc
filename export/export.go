// Package export serializes premium records to CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

var header = []string{
	"county", "state",
	"individual_premium", "small_group_premium", "difference",
	"year", "age", "metal_tier",
}

// CSV writes records as CSV, sorted by state then county then filter.
// Missing premium values render as empty cells, never zeros.
func CSV(w io.Writer, records []premium.Premium) error {
	sorted := make([]premium.Premium, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Key.Parent != b.Key.Parent {
			return a.Key.Parent < b.Key.Parent
		}
		if a.Key.Region != b.Key.Region {
			return a.Key.Region < b.Key.Region
		}
		if a.Filter.Year != b.Filter.Year {
			return a.Filter.Year < b.Filter.Year
		}
		if a.Filter.Age != b.Filter.Age {
			return a.Filter.Age < b.Filter.Age
		}
		return a.Filter.Metal < b.Filter.Metal
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, rec := range sorted {
		row := []string{
			rec.Key.Region,
			rec.Key.Parent,
			cell(rec.Individual),
			cell(rec.SmallGroup),
			cell(rec.Difference),
			strconv.Itoa(rec.Filter.Year),
			strconv.Itoa(rec.Filter.Age),
			titleMetal(rec.Filter.Metal),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write row %s: %w", rec.Key.Region, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	return nil
}

// WriteFile writes records to a CSV file, creating or truncating it.
func WriteFile(path string, records []premium.Premium) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := CSV(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	return nil
}

func cell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func titleMetal(metal string) string {
	if metal == "" {
		return ""
	}
	return strings.ToUpper(metal[:1]) + metal[1:]
}
