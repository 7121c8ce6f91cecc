package tooltip

import (
	"errors"
	"testing"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

var gold2026 = premium.FilterSelection{Year: 2026, Age: 50, Metal: "gold"}

func TestParse_FullTooltip(t *testing.T) {
	text := "Shasta County, CA\nDiff (Ind - Small): $605.64\nIndividual: $1,414.50  Small Group: $808.86"

	p, err := Parse(text, gold2026)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Key.Region != "Shasta County" {
		t.Errorf("Region: got %q, want %q", p.Key.Region, "Shasta County")
	}
	if p.Key.Parent != "CA" {
		t.Errorf("Parent: got %q, want %q", p.Key.Parent, "CA")
	}
	if p.Individual == nil || *p.Individual != 1414.50 {
		t.Errorf("Individual: got %v, want 1414.50", p.Individual)
	}
	if p.SmallGroup == nil || *p.SmallGroup != 808.86 {
		t.Errorf("SmallGroup: got %v, want 808.86", p.SmallGroup)
	}
	if p.Difference == nil || *p.Difference != 605.64 {
		t.Errorf("Difference: got %v, want 605.64", p.Difference)
	}
	if p.Filter != gold2026 {
		t.Errorf("Filter: got %v, want %v", p.Filter, gold2026)
	}
}

func TestParse_PlaceholderIndividual(t *testing.T) {
	// Alaska has no individual market: the individual side is a
	// placeholder and both it and the derived difference must be nil,
	// not zero.
	text := "Anchorage Municipality, AK\nDiff (Ind - Small): N/A\nIndividual: N/A  Small Group: $912.40"

	p, err := Parse(text, gold2026)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Individual != nil {
		t.Errorf("Individual: got %v, want nil", *p.Individual)
	}
	if p.Difference != nil {
		t.Errorf("Difference: got %v, want nil", *p.Difference)
	}
	if p.SmallGroup == nil || *p.SmallGroup != 912.40 {
		t.Errorf("SmallGroup: got %v, want 912.40", p.SmallGroup)
	}
}

func TestParse_NegativeDifference(t *testing.T) {
	text := "Harris County, TX\nDiff (Ind - Small): -$47.62\nIndividual: $700.98  Small Group: $748.60"

	p, err := Parse(text, gold2026)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Difference == nil || *p.Difference != -47.62 {
		t.Errorf("Difference: got %v, want -47.62", p.Difference)
	}
}

func TestParse_EnDash(t *testing.T) {
	// The diff label dash varies between hyphen, en dash, and minus sign.
	text := "Shasta County, CA\nDiff (Ind – Small): $605.64\nIndividual: $1,414.50  Small Group: $808.86"
	if _, err := Parse(text, gold2026); err != nil {
		t.Fatalf("Parse with en dash: %v", err)
	}
}

func TestParse_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := Parse(text, gold2026); !errors.Is(err, ErrEmptyText) {
			t.Errorf("Parse(%q): got %v, want ErrEmptyText", text, err)
		}
	}
}

func TestParse_UnrecognizedFormat(t *testing.T) {
	if _, err := Parse("Loading map data...", gold2026); !errors.Is(err, ErrUnrecognized) {
		t.Errorf("Parse chrome text: got %v, want ErrUnrecognized", err)
	}
	// Header without any premium line is not a data tooltip.
	if _, err := Parse("Shasta County, CA", gold2026); !errors.Is(err, ErrUnrecognized) {
		t.Errorf("Parse header only: got %v, want ErrUnrecognized", err)
	}
}

func TestParse_QualifierStripped(t *testing.T) {
	text := "Shasta County*, CA\nDiff (Ind - Small): $605.64\nIndividual: $1,414.50  Small Group: $808.86"
	p, err := Parse(text, gold2026)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Key.Region != "Shasta County" {
		t.Errorf("Region: got %q, want qualifier stripped", p.Key.Region)
	}
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"$1,414.50", fp(1414.50)},
		{"605.64", fp(605.64)},
		{"-$47.62", fp(-47.62)},
		{"N/A", nil},
		{"—", nil},
		{"--", nil},
		{"", nil},
	}
	for _, c := range cases {
		got := parseMoney(c.in)
		switch {
		case c.want == nil && got != nil:
			t.Errorf("parseMoney(%q): got %v, want nil", c.in, *got)
		case c.want != nil && got == nil:
			t.Errorf("parseMoney(%q): got nil, want %v", c.in, *c.want)
		case c.want != nil && got != nil && *got != *c.want:
			t.Errorf("parseMoney(%q): got %v, want %v", c.in, *got, *c.want)
		}
	}
}

func fp(v float64) *float64 { return &v }
