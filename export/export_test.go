package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

func money(v float64) *float64 { return &v }

func rec(region, parent string, ind, grp *float64) premium.Premium {
	r := premium.Premium{
		Key:        premium.RegionKey{Region: region, Parent: parent},
		Individual: ind,
		SmallGroup: grp,
		Filter:     premium.FilterSelection{Year: 2026, Age: 50, Metal: "gold"},
	}
	r.Derive()
	return r
}

func TestCSV(t *testing.T) {
	records := []premium.Premium{
		rec("Harris County", "TX", money(700.98), money(748.60)),
		rec("Shasta County", "CA", money(1414.50), money(808.86)),
		rec("Aleutians East", "AK", nil, money(912)),
	}

	var sb strings.Builder
	if err := CSV(&sb, records); err != nil {
		t.Fatalf("CSV: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows: got %d, want header + 3", len(rows))
	}
	if rows[0][0] != "county" || rows[0][7] != "metal_tier" {
		t.Errorf("header: got %v", rows[0])
	}

	// Sorted by state then county: AK, CA, TX.
	if rows[1][1] != "AK" || rows[2][1] != "CA" || rows[3][1] != "TX" {
		t.Errorf("order: got %s, %s, %s", rows[1][1], rows[2][1], rows[3][1])
	}

	ak := rows[1]
	if ak[2] != "" || ak[4] != "" {
		t.Errorf("missing values must be blank: got individual=%q difference=%q", ak[2], ak[4])
	}
	if ak[3] != "912.00" {
		t.Errorf("small group: got %q", ak[3])
	}

	ca := rows[2]
	if ca[2] != "1414.50" || ca[3] != "808.86" || ca[4] != "605.64" {
		t.Errorf("CA premiums: got %v", ca[2:5])
	}
	if ca[5] != "2026" || ca[6] != "50" || ca[7] != "Gold" {
		t.Errorf("CA filter columns: got %v", ca[5:8])
	}

	tx := rows[3]
	if tx[4] != "-47.62" {
		t.Errorf("negative difference: got %q", tx[4])
	}
}

func TestCSVDoesNotMutateInput(t *testing.T) {
	records := []premium.Premium{
		rec("Shasta County", "CA", money(1), money(2)),
		rec("Aleutians East", "AK", money(3), money(4)),
	}
	var sb strings.Builder
	if err := CSV(&sb, records); err != nil {
		t.Fatalf("CSV: %v", err)
	}
	if records[0].Key.Parent != "CA" {
		t.Errorf("input reordered: got %s first", records[0].Key.Parent)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	records := []premium.Premium{rec("Shasta County", "CA", money(1414.50), money(808.86))}

	if err := WriteFile(path, records); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "Shasta County,CA,1414.50") {
		t.Errorf("file content: got %q", string(data))
	}
}
