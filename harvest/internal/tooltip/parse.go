package tooltip

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

// Parse failure reasons. All are recoverable: the pass counts them and
// records the target as no-data.
var (
	ErrEmptyText    = errors.New("tooltip: empty text")
	ErrUnrecognized = errors.New("tooltip: unrecognized text format")
	ErrNoRegion     = errors.New("tooltip: region name not resolvable")
)

// Expected tooltip shape, after whitespace normalization:
//
//	{Region}, {XX}
//	Diff (Ind - Small): $605.64
//	Individual: $1,414.50  Small Group: $808.86
//
// The dash inside "Ind - Small" varies (hyphen, en dash, minus sign) and
// either premium component may be a non-numeric placeholder.
var (
	headerRe     = regexp.MustCompile(`^\s*(?P<region>[^,]+),\s*(?P<parent>[A-Z]{2})\b`)
	individualRe = regexp.MustCompile(`(?i)Individual:\s*(?P<val>\$?-?[\d,]+(?:\.\d+)?|[^\s$]+)`)
	smallGroupRe = regexp.MustCompile(`(?i)Small\s*Group:\s*(?P<val>\$?-?[\d,]+(?:\.\d+)?|[^\s$]+)`)
)

// Parse converts raw tooltip text into a typed record under the given
// filter selection. The difference field is derived from the parsed
// components, never transcribed, so the record invariant holds by
// construction.
func Parse(text string, sel premium.FilterSelection) (premium.Premium, error) {
	if strings.TrimSpace(text) == "" {
		return premium.Premium{}, ErrEmptyText
	}

	// Collapse all whitespace: tooltips mix newlines and nbsp.
	flat := strings.Join(strings.Fields(text), " ")

	hm := headerRe.FindStringSubmatch(flat)
	if hm == nil {
		return premium.Premium{}, fmt.Errorf("%w: %q", ErrUnrecognized, truncate(flat, 80))
	}
	region := premium.NormalizeRegion(hm[headerRe.SubexpIndex("region")])
	if region == "" {
		return premium.Premium{}, ErrNoRegion
	}

	im := individualRe.FindStringSubmatch(flat)
	sm := smallGroupRe.FindStringSubmatch(flat)
	if im == nil && sm == nil {
		return premium.Premium{}, fmt.Errorf("%w: no premium lines in %q", ErrUnrecognized, truncate(flat, 80))
	}

	p := premium.Premium{
		Key: premium.RegionKey{
			Region: region,
			Parent: hm[headerRe.SubexpIndex("parent")],
		},
		Filter: sel,
	}
	if im != nil {
		p.Individual = parseMoney(im[individualRe.SubexpIndex("val")])
	}
	if sm != nil {
		p.SmallGroup = parseMoney(sm[smallGroupRe.SubexpIndex("val")])
	}
	p.Derive()
	return p, nil
}

// parseMoney converts a currency string to a value. Placeholders ("N/A",
// em dashes, "--") and anything non-numeric mean "no data" and map to nil,
// never to zero.
func parseMoney(s string) *float64 {
	cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "$", ""), ",", ""))
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
