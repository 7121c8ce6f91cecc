package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/hazyhaar/ichramap/harvest/internal/filterctl"
	"github.com/hazyhaar/ichramap/harvest/internal/region"
	"github.com/hazyhaar/ichramap/harvest/internal/surface"
	"github.com/hazyhaar/ichramap/harvest/internal/tooltip"
	"github.com/hazyhaar/ichramap/harvest/premium"
)

var gold2026 = FilterSelection{Year: 2026, Age: 50, Metal: "gold"}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// fakeFilter records Apply calls and optionally always fails to settle.
type fakeFilter struct {
	applied  []FilterSelection
	settleOK bool
}

func (f *fakeFilter) Apply(ctx context.Context, sel FilterSelection) error {
	f.applied = append(f.applied, sel)
	if !f.settleOK {
		return fmt.Errorf("%w: %s", filterctl.ErrSettle, sel.String())
	}
	return nil
}

// fakeReader serves canned tooltip texts keyed by grid position.
type fakeReader struct {
	texts []string
	reads int
}

func (r *fakeReader) Read(ctx context.Context, t region.Target) (string, error) {
	i := r.reads
	r.reads++
	if i >= len(r.texts) || r.texts[i] == "" {
		return "", tooltip.ErrNoTooltip
	}
	return r.texts[i], nil
}

func testSession(t *testing.T, ctrl filterApplier, reader hoverReader, targets int) *Session {
	t.Helper()
	cfg := &Config{}
	cfg.defaults()
	s := &Session{
		cfg:    cfg,
		surf:   surface.Raster,
		ctrl:   ctrl,
		reader: reader,
		store:  premium.NewStore(premium.KeepLatest, nil),
		logger: discardLogger(),
	}
	s.enumFn = func(ctx context.Context) (region.Enumerator, error) {
		return region.Raster(region.Box{W: float64(targets), H: 1}, 1)
	}
	return s
}

func TestExtract_HappyPath(t *testing.T) {
	shasta := "Shasta County, CA\nDiff (Ind - Small): $605.64\nIndividual: $1,414.50  Small Group: $808.86"
	harris := "Harris County, TX\nDiff (Ind - Small): -$47.62\nIndividual: $700.98  Small Group: $748.60"

	// Five grid points: two on Shasta (oversampling duplicate), one
	// ocean miss, one unparseable, one on Harris.
	reader := &fakeReader{texts: []string{shasta, shasta, "", "Loading...", harris}}
	s := testSession(t, &fakeFilter{settleOK: true}, reader, 5)

	report, err := s.Extract(context.Background(), gold2026)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if report.Incomplete {
		t.Error("Incomplete: got true, want false")
	}
	if report.Targets != 5 {
		t.Errorf("Targets: got %d, want 5", report.Targets)
	}
	if report.Records != 2 {
		t.Errorf("Records: got %d, want 2", report.Records)
	}
	if report.Duplicates != 1 {
		t.Errorf("Duplicates: got %d, want 1", report.Duplicates)
	}
	if report.NoData != 1 {
		t.Errorf("NoData: got %d, want 1", report.NoData)
	}
	if report.ParseFailures != 1 {
		t.Errorf("ParseFailures: got %d, want 1", report.ParseFailures)
	}
	if s.Store().Len() != 2 {
		t.Errorf("store Len: got %d, want 2", s.Store().Len())
	}
}

func TestExtract_SettleFailureEmitsNothing(t *testing.T) {
	reader := &fakeReader{texts: []string{"Shasta County, CA\nIndividual: $1  Small Group: $2"}}
	ctrl := &fakeFilter{settleOK: false}
	s := testSession(t, ctrl, reader, 5)

	report, err := s.Extract(context.Background(), gold2026)
	if !errors.Is(err, ErrFilterSettle) {
		t.Fatalf("Extract: got %v, want ErrFilterSettle", err)
	}
	if !report.Incomplete {
		t.Error("Incomplete: got false, want true")
	}
	if reader.reads != 0 {
		t.Errorf("reads under unsettled filter: got %d, want 0", reader.reads)
	}
	if s.Store().Len() != 0 {
		t.Errorf("records tagged with stale filter: got %d, want 0", s.Store().Len())
	}
	// The settle failure is retried the configured number of times.
	if len(ctrl.applied) != 3 {
		t.Errorf("Apply attempts: got %d, want 3 (initial + 2 retries)", len(ctrl.applied))
	}
}

func TestExtract_CancelPreservesPartialResults(t *testing.T) {
	shasta := "Shasta County, CA\nDiff (Ind - Small): $605.64\nIndividual: $1,414.50  Small Group: $808.86"

	ctx, cancel := context.WithCancel(context.Background())
	reader := &cancellingReader{inner: &fakeReader{texts: []string{shasta}}, cancel: cancel, after: 1}
	s := testSession(t, &fakeFilter{settleOK: true}, reader, 100)

	report, err := s.Extract(ctx, gold2026)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Extract: got %v, want context.Canceled", err)
	}
	if !report.Incomplete {
		t.Error("Incomplete: got false, want true")
	}
	if report.Records != 1 {
		t.Errorf("partial Records: got %d, want 1", report.Records)
	}
	if s.Store().Len() != 1 {
		t.Errorf("partial store: got %d, want 1 record preserved", s.Store().Len())
	}
	if report.Targets >= 100 {
		t.Errorf("Targets: got %d, want early stop", report.Targets)
	}
}

// cancellingReader cancels the pass context after a number of reads,
// simulating an operator abort mid-enumeration.
type cancellingReader struct {
	inner  *fakeReader
	cancel context.CancelFunc
	after  int
}

func (r *cancellingReader) Read(ctx context.Context, t region.Target) (string, error) {
	text, err := r.inner.Read(ctx, t)
	if r.inner.reads >= r.after {
		r.cancel()
	}
	return text, err
}

func TestExtract_InvalidSelection(t *testing.T) {
	s := testSession(t, &fakeFilter{settleOK: true}, &fakeReader{}, 1)
	if _, err := s.Extract(context.Background(), FilterSelection{Year: 1999, Age: 50, Metal: "gold"}); err == nil {
		t.Error("Extract with invalid year: expected error")
	}
}
