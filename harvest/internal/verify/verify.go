// Package verify re-samples captured regions against the live map and
// diffs them field-by-field. This is a point-in-time consistency check,
// not a correctness proof: the source data can change between extraction
// and verification, so a mismatch is reported as possibly upstream, never
// asserted as an extraction defect.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

// Check is the verdict for one sampled region.
type Check struct {
	Key    premium.RegionKey `json:"key"`
	Pass   bool              `json:"pass"`
	Reason string            `json:"reason,omitempty"`
}

// Report is the outcome of one verification run. Overall fails if any
// sampled region mismatched or was unreachable via live re-read.
type Report struct {
	Filter  premium.FilterSelection `json:"filter"`
	Overall bool                    `json:"overall"`
	Checks  []Check                 `json:"checks"`
}

// Resample re-drives the single-target extraction path for the requested
// identities (filters already applied) and returns whatever it could
// re-read. Keys absent from the result were unreachable.
type Resample func(ctx context.Context, keys map[premium.RegionKey]bool) (map[premium.RegionKey]premium.Premium, error)

// Options tunes a run.
type Options struct {
	// Sample is how many stored regions to re-read. Default: 15.
	Sample int
	// Rand drives sample selection; tests inject a fixed seed. Default:
	// a freshly seeded source.
	Rand   *rand.Rand
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Sample <= 0 {
		o.Sample = 15
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(rand.Int63()))
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Run verifies a random sample of the store's records for one filter
// selection against a live resample.
func Run(ctx context.Context, store *premium.Store, f premium.FilterSelection, resample Resample, opts Options) (Report, error) {
	opts.defaults()

	stored := store.RecordsFor(f)
	if len(stored) == 0 {
		return Report{}, fmt.Errorf("verify: no records stored for %s", f.String())
	}

	sample := pick(stored, opts.Sample, opts.Rand)
	keys := make(map[premium.RegionKey]bool, len(sample))
	for _, p := range sample {
		keys[p.Key] = true
	}

	live, err := resample(ctx, keys)
	if err != nil {
		return Report{}, fmt.Errorf("verify: resample: %w", err)
	}

	report := Report{Filter: f, Overall: true}
	for _, want := range sample {
		report.Checks = append(report.Checks, compare(want, live))
	}
	for _, c := range report.Checks {
		if !c.Pass {
			report.Overall = false
		}
	}

	opts.Logger.Info("verify: run complete",
		"filter", f.String(), "sample", len(sample), "overall", report.Overall)
	return report, nil
}

// compare diffs one stored record against the live resample.
func compare(want premium.Premium, live map[premium.RegionKey]premium.Premium) Check {
	got, ok := live[want.Key]
	if !ok {
		return Check{Key: want.Key, Pass: false, Reason: "unreachable via live re-read"}
	}
	if !want.Equal(got) {
		return Check{
			Key:  want.Key,
			Pass: false,
			Reason: fmt.Sprintf("mismatch, possibly due to source update: stored %s, live %s",
				render(want), render(got)),
		}
	}
	return Check{Key: want.Key, Pass: true}
}

// pick selects up to n records without replacement.
func pick(records []premium.Premium, n int, r *rand.Rand) []premium.Premium {
	if n >= len(records) {
		out := make([]premium.Premium, len(records))
		copy(out, records)
		return out
	}
	out := make([]premium.Premium, 0, n)
	for _, i := range r.Perm(len(records))[:n] {
		out = append(out, records[i])
	}
	return out
}

func render(p premium.Premium) string {
	f := func(v *float64) string {
		if v == nil {
			return "nil"
		}
		return fmt.Sprintf("%.2f", *v)
	}
	return fmt.Sprintf("{ind=%s sg=%s diff=%s}", f(p.Individual), f(p.SmallGroup), f(p.Difference))
}
