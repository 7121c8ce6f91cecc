package surface

import "testing"

func TestClassify_VectorWinsTies(t *testing.T) {
	// Both signatures present: vector is cheaper and more precise.
	if got := classify(3100, 1, 100); got != Vector {
		t.Errorf("classify(3100, 1): got %v, want Vector", got)
	}
}

func TestClassify_FewPathsIsNotVector(t *testing.T) {
	// Legends and icons are SVG paths too; below the threshold the canvas
	// signature decides.
	if got := classify(12, 1, 100); got != Raster {
		t.Errorf("classify(12, 1): got %v, want Raster", got)
	}
}

func TestClassify_NeitherSignature(t *testing.T) {
	if got := classify(0, 0, 100); got != Undetermined {
		t.Errorf("classify(0, 0): got %v, want Undetermined", got)
	}
	if got := classify(40, 0, 100); got != Undetermined {
		t.Errorf("classify(40, 0): got %v, want Undetermined", got)
	}
}

func TestParseType(t *testing.T) {
	cases := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", Undetermined, false},
		{"auto", Undetermined, false},
		{"vector", Vector, false},
		{"raster", Raster, false},
		{"webgl", Undetermined, true},
	}
	for _, c := range cases {
		got, err := ParseType(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseType(%q): error = %v, wantErr = %v", c.in, err, c.wantErr)
			continue
		}
		if got != c.want {
			t.Errorf("ParseType(%q): got %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTypeString(t *testing.T) {
	if Vector.String() != "vector" || Raster.String() != "raster" || Undetermined.String() != "undetermined" {
		t.Error("Type.String: unexpected names")
	}
}
