// Package harvest extracts per-region premium values from an interactive
// map widget that exposes data only through hover tooltips. It detects
// whether the map is vector- or raster-rendered, drives synthetic pointer
// interactions across all regions for each requested filter selection,
// parses tooltip text into typed records, deduplicates observations, and
// can re-verify a sample against the live surface.
//
// harvest reads, it does not persist. Extracted records are handed to
// consumers (premcache, export, custom pipelines) via the premium package.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hazyhaar/ichramap/harvest/internal/browser"
	"github.com/hazyhaar/ichramap/harvest/internal/filterctl"
	"github.com/hazyhaar/ichramap/harvest/internal/region"
	"github.com/hazyhaar/ichramap/harvest/internal/surface"
	"github.com/hazyhaar/ichramap/harvest/internal/tooltip"
	"github.com/hazyhaar/ichramap/harvest/internal/verify"
	"github.com/hazyhaar/ichramap/harvest/premium"
	"github.com/hazyhaar/ichramap/idgen"
)

// FilterSelection re-exports the pass scope tuple.
type FilterSelection = premium.FilterSelection

// Sentinel failures callers branch on.
var (
	// ErrSurfaceUndetermined: neither rendering signature was found.
	// Fatal for the session; no extraction is attempted.
	ErrSurfaceUndetermined = surface.ErrUndetermined
	// ErrFilterSettle: the map never reflected a selection. Fatal for
	// that selection's pass only.
	ErrFilterSettle = filterctl.ErrSettle
)

// Engine owns the browser and creates sessions. Create one per process.
type Engine struct {
	cfg    *Config
	mgr    *browser.Manager
	logger *slog.Logger
}

// New creates an Engine from configuration.
func New(cfg *Config, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	mode := browser.ModeHeadless
	if cfg.Browser.Headful {
		mode = browser.ModeHeadful
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:   cfg.Browser.Remote,
		Mode:        mode,
		Blocking:    cfg.Browser.Blocking,
		XvfbDisplay: cfg.Browser.XvfbDisplay,
		Logger:      logger,
	})

	return &Engine{cfg: cfg, mgr: mgr, logger: logger}
}

// Start launches the browser.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.mgr.Start(ctx); err != nil {
		return fmt.Errorf("harvest: start browser: %w", err)
	}
	return nil
}

// Stop shuts the browser down.
func (e *Engine) Stop() {
	e.mgr.Close()
}

// filterApplier and hoverReader are what Extract needs from the filter
// controller and tooltip reader; narrowed for testability.
type filterApplier interface {
	Apply(ctx context.Context, sel premium.FilterSelection) error
}

type hoverReader interface {
	Read(ctx context.Context, t region.Target) (string, error)
}

// Session drives one page. It owns the tab, the detected surface type and
// the record store; it is not safe for concurrent use. Run independent
// sessions (each with its own Session and page) to parallelise, then fold
// their stores together with premium.Store.Merge.
type Session struct {
	id     string
	cfg    *Config
	tab    *browser.Tab
	surf   surface.Type
	ctrl   filterApplier
	reader hoverReader
	enumFn func(ctx context.Context) (region.Enumerator, error)
	store  *premium.Store
	logger *slog.Logger
}

// NewSession opens a tab on the configured URL, scrolls the map into view
// and classifies the rendering surface (honouring the configured
// override). ErrSurfaceUndetermined is fatal: no strategy can proceed.
func (e *Engine) NewSession(ctx context.Context) (*Session, error) {
	tab, err := browser.OpenTab(ctx, e.mgr, e.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("harvest: open page: %w", err)
	}

	if err := tab.ScrollIntoView(ctx, e.cfg.Filter.MapSelector); err != nil {
		e.logger.Warn("harvest: map not scrollable into view", "error", err)
	}

	surf, err := surface.ParseType(e.cfg.Surface.Override)
	if err != nil {
		tab.Close()
		return nil, err
	}
	if surf == surface.Undetermined {
		surf, err = surface.Detect(ctx, tab.Page, surface.Options{
			PathSelector: e.cfg.Surface.PathSelector,
			MinPaths:     e.cfg.Surface.MinPaths,
			Wait:         e.cfg.Surface.Wait,
			Logger:       e.logger,
		})
		if err != nil {
			tab.Close()
			return nil, err
		}
	} else {
		e.logger.Info("harvest: surface override active", "type", surf.String())
	}

	id := idgen.Prefixed("sess_", idgen.NanoID(8))()
	logger := e.logger.With("session", id)

	s := &Session{
		id:   id,
		cfg:  e.cfg,
		tab:  tab,
		surf: surf,
		ctrl: filterctl.New(tab.Page, filterctl.Config{
			YearSelector:    e.cfg.Filter.YearSelector,
			AgeSelector:     e.cfg.Filter.AgeSelector,
			MetalSelector:   e.cfg.Filter.MetalSelector,
			MapSelector:     e.cfg.Filter.MapSelector,
			LoadingSelector: e.cfg.Filter.LoadingSelector,
			SettleQuiet:     e.cfg.Filter.SettleQuiet,
			SettleTimeout:   e.cfg.Filter.SettleTimeout,
			Retries:         e.cfg.Filter.Retries,
			Logger:          logger,
		}),
		reader: tooltip.NewReader(tab.Page, tooltip.Config{
			Selectors: e.cfg.Tooltip.Selectors,
			Attempts:  e.cfg.Tooltip.Attempts,
			Poll:      e.cfg.Tooltip.Poll,
			Logger:    logger,
		}),
		store:  premium.NewStore(premium.ConflictPolicy(e.cfg.Conflicts), logger),
		logger: logger,
	}
	s.enumFn = s.enumerator
	return s, nil
}

// ID returns the session's log correlation tag.
func (s *Session) ID() string { return s.id }

// Surface returns the session's cached surface type.
func (s *Session) Surface() string { return s.surf.String() }

// Store exposes the session's accumulated records.
func (s *Session) Store() *premium.Store { return s.store }

// Close releases the session's tab.
func (s *Session) Close() {
	if s.tab != nil {
		s.tab.Close()
	}
}

// Extract runs one full enumeration pass for the selection. The pass
// survives per-target failures (counted, recorded as no-data) and
// conflicts (counted, resolved per policy); it terminates early and is
// marked Incomplete on filter-settle failure or context cancellation,
// preserving whatever was captured before the cut.
func (s *Session) Extract(ctx context.Context, sel FilterSelection) (*PassReport, error) {
	if err := sel.Validate(); err != nil {
		return nil, fmt.Errorf("harvest: %w", err)
	}

	started := time.Now()
	report := &PassReport{Filter: sel, Surface: s.surf.String()}

	if err := s.applyFilter(ctx, sel); err != nil {
		report.Incomplete = true
		report.Elapsed = time.Since(started)
		return report, err
	}

	enum, err := s.enumFn(ctx)
	if err != nil {
		report.Incomplete = true
		report.Elapsed = time.Since(started)
		return report, err
	}

	s.logger.Info("harvest: pass started",
		"filter", sel.String(), "surface", s.surf.String(), "targets", enum.Len())

	for {
		// Cancellation lands at target boundaries only: never mid-hover.
		if err := ctx.Err(); err != nil {
			report.Incomplete = true
			report.Elapsed = time.Since(started)
			return report, err
		}

		t, ok := enum.Next()
		if !ok {
			break
		}
		report.Targets++

		s.readInto(ctx, t, sel, report)

		if report.Targets%500 == 0 {
			s.logger.Info("harvest: pass progress",
				"filter", sel.String(),
				"visited", report.Targets,
				"total", enum.Len(),
				"records", report.Records)
		}
	}

	report.Elapsed = time.Since(started)
	s.logger.Info("harvest: pass complete",
		"filter", sel.String(),
		"records", report.Records,
		"no_data", report.NoData,
		"parse_failures", report.ParseFailures,
		"conflicts", report.Conflicts,
		"elapsed", report.Elapsed)
	return report, nil
}

// applyFilter retries filter application against transient settle
// failures before declaring the pass dead.
func (s *Session) applyFilter(ctx context.Context, sel FilterSelection) error {
	retries := s.cfg.Filter.Retries
	if retries <= 0 {
		retries = 2
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = s.ctrl.Apply(ctx, sel); err == nil {
			return nil
		}
		if !errors.Is(err, ErrFilterSettle) {
			return err
		}
		s.logger.Warn("harvest: filter settle failed, retrying",
			"filter", sel.String(), "attempt", attempt+1, "error", err)
	}
	return err
}

// readInto performs one hover-read-parse-store cycle and updates counters.
func (s *Session) readInto(ctx context.Context, t region.Target, sel FilterSelection, report *PassReport) {
	text, err := s.reader.Read(ctx, t)
	if err != nil {
		if !errors.Is(err, tooltip.ErrNoTooltip) {
			s.logger.Debug("harvest: read failed", "target", t.Describe(), "error", err)
		}
		s.store.MarkNoData()
		report.NoData++
		return
	}

	rec, err := tooltip.Parse(text, sel)
	if err != nil {
		s.logger.Debug("harvest: parse failed", "target", t.Describe(), "error", err)
		s.store.MarkNoData()
		report.ParseFailures++
		return
	}

	switch s.store.Put(rec) {
	case premium.PutNew:
		report.Records++
	case premium.PutDuplicate:
		report.Duplicates++
	case premium.PutConflict:
		report.Conflicts++
	}
}

// enumerator builds the target sequence for the active surface.
func (s *Session) enumerator(ctx context.Context) (region.Enumerator, error) {
	switch s.surf {
	case surface.Vector:
		sel := s.cfg.Surface.PathSelector
		if sel == "" {
			sel = "svg path[d]"
		}
		return region.Vector(ctx, s.tab.Page, sel)
	case surface.Raster:
		box, err := region.MapBox(ctx, s.tab.Page, s.cfg.Filter.MapSelector)
		if err != nil {
			return nil, err
		}
		return region.Raster(box, s.cfg.Raster.Step)
	}
	return nil, ErrSurfaceUndetermined
}

// Verify re-samples n stored regions for the selection against the live
// map and diffs them field-by-field with zero tolerance.
func (s *Session) Verify(ctx context.Context, sel FilterSelection, n int) (*VerificationReport, error) {
	report, err := verify.Run(ctx, s.store, sel, s.resample(sel), verify.Options{
		Sample: n,
		Rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		Logger: s.logger,
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// resample re-drives the single-target extraction path, narrowed to the
// sampled identities: the full sequence is walked but only reads whose
// parsed key is in the sample are kept, and the walk stops as soon as
// every sampled identity was seen.
func (s *Session) resample(sel FilterSelection) verify.Resample {
	return func(ctx context.Context, keys map[premium.RegionKey]bool) (map[premium.RegionKey]premium.Premium, error) {
		if err := s.applyFilter(ctx, sel); err != nil {
			return nil, err
		}
		enum, err := s.enumFn(ctx)
		if err != nil {
			return nil, err
		}

		found := make(map[premium.RegionKey]premium.Premium, len(keys))
		for len(found) < len(keys) {
			if err := ctx.Err(); err != nil {
				return found, err
			}
			t, ok := enum.Next()
			if !ok {
				break
			}

			text, err := s.reader.Read(ctx, t)
			if err != nil {
				continue
			}
			rec, err := tooltip.Parse(text, sel)
			if err != nil {
				continue
			}
			if keys[rec.Key] {
				if _, seen := found[rec.Key]; !seen {
					found[rec.Key] = rec
				}
			}
		}
		return found, nil
	}
}
