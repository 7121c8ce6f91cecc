// Package premium defines the structured types produced by the harvest
// engine. These are the public API contract: any consumer (directfetch,
// premcache, export, custom pipelines) imports this package to receive
// and process extracted premium observations.
package premium

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// FilterSelection is the (year, age, metal-tier) tuple one extraction pass
// is scoped to. Immutable; construct, Validate, then pass by value.
type FilterSelection struct {
	Year  int    `json:"year" yaml:"year"`   // plan year, 2017..2026
	Age   int    `json:"age" yaml:"age"`     // 27 or 50
	Metal string `json:"metal" yaml:"metal"` // bronze | silver | gold
}

// Validate checks the selection against the domains the source map offers.
func (f FilterSelection) Validate() error {
	if f.Year < 2017 || f.Year > 2026 {
		return fmt.Errorf("premium: year %d out of range [2017..2026]", f.Year)
	}
	if f.Age != 27 && f.Age != 50 {
		return fmt.Errorf("premium: age %d not offered (want 27 or 50)", f.Age)
	}
	switch strings.ToLower(f.Metal) {
	case "bronze", "silver", "gold":
	default:
		return fmt.Errorf("premium: unknown metal tier %q", f.Metal)
	}
	return nil
}

func (f FilterSelection) String() string {
	return fmt.Sprintf("%d/%d/%s", f.Year, f.Age, strings.ToLower(f.Metal))
}

// RegionKey identifies one geographic unit: a normalized region name plus
// the two-letter parent-region code. It is the deduplication key and must
// be stable across repeated extraction passes.
type RegionKey struct {
	Region string `json:"region"` // e.g. "Shasta County"
	Parent string `json:"parent"` // e.g. "CA"
}

func (k RegionKey) String() string {
	return k.Region + ", " + k.Parent
}

// Premium is one parsed observation for a region under a filter selection.
// Difference is derived: Individual − SmallGroup when both are present,
// nil otherwise. A nil component is "no data", never zero.
type Premium struct {
	Key        RegionKey       `json:"key"`
	Individual *float64        `json:"individual"`
	SmallGroup *float64        `json:"small_group"`
	Difference *float64        `json:"difference"`
	Filter     FilterSelection `json:"filter"`
}

// Derive recomputes Difference from the premium components, rounded to
// cents. Call after setting Individual/SmallGroup.
func (p *Premium) Derive() {
	if p.Individual == nil || p.SmallGroup == nil {
		p.Difference = nil
		return
	}
	d := roundCents(*p.Individual - *p.SmallGroup)
	p.Difference = &d
}

// Equal compares two observations field-by-field with zero tolerance.
// Keys and filters must match for the records to be comparable at all.
func (p Premium) Equal(o Premium) bool {
	return p.Key == o.Key &&
		p.Filter == o.Filter &&
		eqPtr(p.Individual, o.Individual) &&
		eqPtr(p.SmallGroup, o.SmallGroup) &&
		eqPtr(p.Difference, o.Difference)
}

func eqPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// qualifierSuffix matches a trailing footnote marker or parenthesized
// qualifier the map appends to some region headers, e.g.
// "Anchorage Municipality (no individual market)" or "Shasta County*".
var qualifierSuffix = regexp.MustCompile(`\s*(\([^)]*\)|[*†])\s*$`)

// NormalizeRegion canonicalizes a region name scraped from a tooltip
// header: whitespace is collapsed and trailing qualifiers are stripped
// until none remain, so stacked qualifiers ("Name (est.)*") reduce in one
// call. Idempotent: normalizing an already-normalized name returns it
// unchanged.
func NormalizeRegion(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	for {
		stripped := strings.TrimSpace(qualifierSuffix.ReplaceAllString(name, ""))
		if stripped == name {
			return name
		}
		name = stripped
	}
}
