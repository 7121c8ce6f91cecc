package main

import "testing"

func TestBuildSelections(t *testing.T) {
	sels, err := buildSelections("2025,2026", "27, 50", "gold,Silver")
	if err != nil {
		t.Fatalf("buildSelections: %v", err)
	}
	if len(sels) != 8 {
		t.Fatalf("selections: got %d, want 8", len(sels))
	}
	first := sels[0]
	if first.Year != 2025 || first.Age != 27 || first.Metal != "gold" {
		t.Errorf("first selection: got %+v", first)
	}
	last := sels[7]
	if last.Year != 2026 || last.Age != 50 || last.Metal != "silver" {
		t.Errorf("last selection: got %+v", last)
	}
}

func TestBuildSelectionsRejectsInvalid(t *testing.T) {
	cases := []struct {
		years, ages, metals string
	}{
		{"2016", "50", "gold"},
		{"2026", "40", "gold"},
		{"2026", "50", "platinum"},
		{"twenty", "50", "gold"},
		{"", "50", "gold"},
	}
	for _, tc := range cases {
		if _, err := buildSelections(tc.years, tc.ages, tc.metals); err == nil {
			t.Errorf("buildSelections(%q, %q, %q): expected error", tc.years, tc.ages, tc.metals)
		}
	}
}
