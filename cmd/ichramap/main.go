// Command ichramap extracts county health premium data from the ICHRA
// insights map.
//
// Usage:
//
//	ichramap -years 2026 -ages 50 -metals gold -o counties.csv
//	ichramap -direct-only -years 2025,2026 -o all.csv
//	ichramap -config ichramap.yaml -surface raster -verify 20
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hazyhaar/ichramap/directfetch"
	"github.com/hazyhaar/ichramap/export"
	"github.com/hazyhaar/ichramap/harvest"
	"github.com/hazyhaar/ichramap/harvest/premium"
	"github.com/hazyhaar/ichramap/idgen"
	"github.com/hazyhaar/ichramap/premcache"
)

func main() {
	configPath := flag.String("config", "", "path to ichramap.yaml config file")
	years := flag.String("years", "2026", "comma-separated years (2017-2026)")
	ages := flag.String("ages", "50", "comma-separated ages (27, 50)")
	metals := flag.String("metals", "gold", "comma-separated metal tiers (bronze, silver, gold)")
	surfaceOverride := flag.String("surface", "", "force surface strategy: vector or raster")
	directOnly := flag.Bool("direct-only", false, "use the published JSON endpoint only, never the browser")
	verifyN := flag.Int("verify", 0, "re-sample N regions per filter after browser extraction")
	cachePath := flag.String("cache", "", "sqlite cache path (empty disables caching)")
	output := flag.String("o", "", "county CSV output path (empty skips export)")
	stateOutput := flag.String("states", "", "state-level aggregate CSV output path")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logger = logger.With("run", idgen.New())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		configPath: *configPath,
		surface:    *surfaceOverride,
		directOnly: *directOnly,
		verifyN:    *verifyN,
		cachePath:  *cachePath,
		output:     *output,
		states:     *stateOutput,
	}
	var err error
	if opts.selections, err = buildSelections(*years, *ages, *metals); err != nil {
		logger.Error("ichramap: bad filter flags", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, logger, opts); err != nil {
		logger.Error("ichramap: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	surface    string
	directOnly bool
	verifyN    int
	cachePath  string
	output     string
	states     string
	selections []premium.FilterSelection
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	store := premium.NewStore(premium.ConflictPolicy(cfg.Conflicts), logger)

	if err := fetchDirect(ctx, logger, cfg, opts, store); err != nil {
		if opts.directOnly {
			return fmt.Errorf("direct fetch: %w", err)
		}
		logger.Warn("ichramap: direct fetch failed, falling back to browser", "error", err)
		if err := runBrowser(ctx, logger, cfg, opts, store); err != nil {
			return err
		}
	}

	records := store.Records()
	logger.Info("ichramap: extraction complete",
		"records", len(records), "no_data", store.NoData(), "conflicts", store.Conflicts())

	if opts.cachePath != "" {
		cache, err := premcache.Open(opts.cachePath, logger)
		if err != nil {
			return err
		}
		cache.PutAll(records)
		if err := cache.Close(); err != nil {
			return fmt.Errorf("cache close: %w", err)
		}
		logger.Info("ichramap: records cached", "path", opts.cachePath, "records", len(records))
	}

	if opts.output != "" {
		if err := export.WriteFile(opts.output, records); err != nil {
			return err
		}
		logger.Info("ichramap: CSV written", "path", opts.output, "records", len(records))
	}

	if opts.states != "" {
		if err := export.WriteStateFile(opts.states, records); err != nil {
			return err
		}
		logger.Info("ichramap: state aggregate written", "path", opts.states)
	}
	return nil
}

func loadConfig(opts options) (*harvest.Config, error) {
	if opts.configPath != "" {
		return harvest.LoadConfigFile(opts.configPath)
	}
	return &harvest.Config{Surface: harvest.SurfaceConfig{Override: opts.surface}}, nil
}

// fetchDirect loads the published dataset and keeps rows matching the
// requested selections.
func fetchDirect(ctx context.Context, logger *slog.Logger, cfg *harvest.Config, opts options, store *premium.Store) error {
	client := directfetch.New(directfetch.Config{
		PageURL: cfg.URL,
		Logger:  logger,
	})
	records, err := client.Fetch(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[premium.FilterSelection]bool, len(opts.selections))
	for _, sel := range opts.selections {
		wanted[sel] = true
	}

	kept := 0
	for _, rec := range records {
		if !wanted[rec.Filter] {
			continue
		}
		store.Put(rec)
		kept++
	}
	if kept == 0 {
		return fmt.Errorf("dataset has no rows for the requested filters")
	}
	logger.Info("ichramap: direct fetch complete", "kept", kept, "total", len(records))
	return nil
}

// runBrowser drives the hover-extraction engine for every selection.
func runBrowser(ctx context.Context, logger *slog.Logger, cfg *harvest.Config, opts options, store *premium.Store) error {
	if opts.surface != "" {
		cfg.Surface.Override = opts.surface
	}

	engine := harvest.New(cfg, logger)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	session, err := engine.NewSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	for _, sel := range opts.selections {
		report, err := session.Extract(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			logger.Error("ichramap: pass failed", "filter", sel.String(), "error", err)
			continue
		}
		logger.Info("ichramap: pass done",
			"filter", sel.String(),
			"records", report.Records,
			"no_data", report.NoData,
			"incomplete", report.Incomplete,
			"elapsed", report.Elapsed)

		if opts.verifyN > 0 {
			vr, err := session.Verify(ctx, sel, opts.verifyN)
			if err != nil {
				logger.Warn("ichramap: verification failed to run", "filter", sel.String(), "error", err)
				continue
			}
			logger.Info("ichramap: verification", "filter", sel.String(), "passed", vr.Overall)
			for _, check := range vr.Checks {
				if !check.Pass {
					logger.Warn("ichramap: verification mismatch",
						"region", check.Key.Region, "state", check.Key.Parent, "reason", check.Reason)
				}
			}
		}
	}

	store.Merge(session.Store())
	return nil
}

// buildSelections expands the years/ages/metals flag lists into their
// cartesian product of validated selections.
func buildSelections(years, ages, metals string) ([]premium.FilterSelection, error) {
	yearVals, err := splitInts(years)
	if err != nil {
		return nil, fmt.Errorf("years: %w", err)
	}
	ageVals, err := splitInts(ages)
	if err != nil {
		return nil, fmt.Errorf("ages: %w", err)
	}
	metalVals := splitStrings(metals)
	if len(yearVals) == 0 || len(ageVals) == 0 || len(metalVals) == 0 {
		return nil, fmt.Errorf("years, ages and metals must each name at least one value")
	}

	var selections []premium.FilterSelection
	for _, year := range yearVals {
		for _, age := range ageVals {
			for _, metal := range metalVals {
				sel := premium.FilterSelection{Year: year, Age: age, Metal: strings.ToLower(metal)}
				if err := sel.Validate(); err != nil {
					return nil, err
				}
				selections = append(selections, sel)
			}
		}
	}
	return selections, nil
}

func splitInts(s string) ([]int, error) {
	var vals []int
	for _, part := range splitStrings(s) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", part)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func splitStrings(s string) []string {
	var parts []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
