package export

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

func TestAggregateStates(t *testing.T) {
	records := []premium.Premium{
		rec("Shasta County", "CA", money(1400), money(800)),
		rec("Los Angeles County", "CA", money(600), money(590)),
		rec("Harris County", "TX", money(700.98), money(748.60)),
	}

	rows := AggregateStates(records)
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(rows))
	}

	ca := rows[0]
	if ca.Abbr != "CA" || ca.Name != "California" {
		t.Errorf("first row: got %s/%s, want CA/California", ca.Abbr, ca.Name)
	}
	if ca.CountyCount != 2 {
		t.Errorf("CA county count: got %d, want 2", ca.CountyCount)
	}
	if ca.Individual == nil || *ca.Individual != 1000.00 {
		t.Errorf("CA individual mean: got %v, want 1000.00", ca.Individual)
	}
	if ca.SmallGroup == nil || *ca.SmallGroup != 695.00 {
		t.Errorf("CA small group mean: got %v, want 695.00", ca.SmallGroup)
	}
	// Mean of per-county derived differences: (600 + 10) / 2.
	if ca.Difference == nil || *ca.Difference != 305.00 {
		t.Errorf("CA difference mean: got %v, want 305.00", ca.Difference)
	}

	tx := rows[1]
	if tx.CountyCount != 1 || tx.Name != "Texas" {
		t.Errorf("TX row: got %+v", tx)
	}
}

func TestAggregateStatesNilHandling(t *testing.T) {
	// One county lacks an individual premium: it still counts toward the
	// group but is excluded from the individual mean, not zeroed.
	records := []premium.Premium{
		rec("Aleutians East", "AK", nil, money(900)),
		rec("Anchorage Municipality", "AK", money(1100), money(1000)),
	}

	rows := AggregateStates(records)
	if len(rows) != 1 {
		t.Fatalf("rows: got %d, want 1", len(rows))
	}
	ak := rows[0]
	if ak.CountyCount != 2 {
		t.Errorf("county count: got %d, want 2", ak.CountyCount)
	}
	if ak.Individual == nil || *ak.Individual != 1100.00 {
		t.Errorf("individual mean over present values: got %v, want 1100.00", ak.Individual)
	}
	if ak.SmallGroup == nil || *ak.SmallGroup != 950.00 {
		t.Errorf("small group mean: got %v, want 950.00", ak.SmallGroup)
	}
	// Only one county has a derived difference.
	if ak.Difference == nil || *ak.Difference != 100.00 {
		t.Errorf("difference mean: got %v, want 100.00", ak.Difference)
	}
}

func TestAggregateStatesAllNilField(t *testing.T) {
	records := []premium.Premium{rec("Aleutians East", "AK", nil, money(900))}
	rows := AggregateStates(records)
	if len(rows) != 1 {
		t.Fatalf("rows: got %d, want 1", len(rows))
	}
	if rows[0].Individual != nil {
		t.Errorf("group with no individual values: got %v, want nil", *rows[0].Individual)
	}
}

func TestAggregateStatesSeparatesFilters(t *testing.T) {
	gold := rec("Shasta County", "CA", money(1400), money(800))
	silver := rec("Shasta County", "CA", money(1100), money(700))
	silver.Filter.Metal = "silver"

	rows := AggregateStates([]premium.Premium{gold, silver})
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want one per filter", len(rows))
	}
	if rows[0].Filter.Metal != "gold" || rows[1].Filter.Metal != "silver" {
		t.Errorf("filter order: got %s, %s", rows[0].Filter.Metal, rows[1].Filter.Metal)
	}
}

func TestStateCSV(t *testing.T) {
	records := []premium.Premium{
		rec("Shasta County", "CA", money(1400), money(800)),
		rec("Aleutians East", "AK", nil, money(900)),
	}

	var sb strings.Builder
	if err := StateCSV(&sb, records); err != nil {
		t.Fatalf("StateCSV: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: got %d, want header + 2", len(rows))
	}
	if rows[0][0] != "state_abbr" || rows[0][5] != "county_count" {
		t.Errorf("header: got %v", rows[0])
	}

	ak := rows[1]
	if ak[0] != "AK" || ak[1] != "Alaska" {
		t.Errorf("AK identity: got %v", ak[:2])
	}
	if ak[2] != "" {
		t.Errorf("all-nil individual must be blank: got %q", ak[2])
	}
	if ak[5] != "1" || ak[6] != "2026" || ak[7] != "50" || ak[8] != "Gold" {
		t.Errorf("AK tail columns: got %v", ak[5:])
	}

	ca := rows[2]
	if ca[2] != "1400.00" || ca[3] != "800.00" || ca[4] != "600.00" {
		t.Errorf("CA means: got %v", ca[2:5])
	}
}
