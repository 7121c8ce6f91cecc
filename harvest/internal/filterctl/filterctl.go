// Package filterctl applies a filter selection to the map's dropdown
// controls and waits for the data layer to settle. Controls are written in
// a fixed order (year, age, metal) because the site repopulates later
// dropdowns as a side effect of earlier ones; after each write the
// controller re-verifies what it set before and retries reverted values.
package filterctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/ichramap/harvest/premium"
)

// ErrSettle means the map never visibly reflected the new selection.
// Fatal for that selection's pass only; proceeding would tag records with
// a stale filter.
var ErrSettle = errors.New("filterctl: filter application failed to settle")

// Config tunes the controller.
type Config struct {
	// Control selectors, in application order.
	YearSelector  string // default "#ichra-year"
	AgeSelector   string // default "#ichra-age"
	MetalSelector string // default "#ichra-metal"

	// MapSelector is the map container watched for DOM quiet.
	// Default "#ichra-map".
	MapSelector string
	// LoadingSelector marks the map's loading indicator; settle requires
	// it absent. Default "#ichra-map .loading".
	LoadingSelector string

	// SettleQuiet is the DOM-quiet period that counts as settled.
	// Default 1.5s.
	SettleQuiet time.Duration
	// SettleTimeout bounds the whole settle wait. Default 15s.
	SettleTimeout time.Duration
	// Retries is how many times a reverted control is re-applied. Default 2.
	Retries int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.YearSelector == "" {
		c.YearSelector = "#ichra-year"
	}
	if c.AgeSelector == "" {
		c.AgeSelector = "#ichra-age"
	}
	if c.MetalSelector == "" {
		c.MetalSelector = "#ichra-metal"
	}
	if c.MapSelector == "" {
		c.MapSelector = "#ichra-map"
	}
	if c.LoadingSelector == "" {
		c.LoadingSelector = "#ichra-map .loading"
	}
	if c.SettleQuiet <= 0 {
		c.SettleQuiet = 1500 * time.Millisecond
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = 15 * time.Second
	}
	if c.Retries <= 0 {
		c.Retries = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Controller manipulates the selection controls of one page.
type Controller struct {
	page *rod.Page
	cfg  Config
}

// New creates a Controller.
func New(page *rod.Page, cfg Config) *Controller {
	cfg.defaults()
	return &Controller{page: page, cfg: cfg}
}

// Apply drives the controls to the selection and blocks until the map
// settles. On settle timeout it returns ErrSettle (wrapped); the caller
// must not extract under the stale state.
func (c *Controller) Apply(ctx context.Context, sel premium.FilterSelection) error {
	if err := sel.Validate(); err != nil {
		return err
	}

	// (selector, value) pairs in the mandated order.
	controls := []struct{ selector, value string }{
		{c.cfg.YearSelector, ControlYear(sel.Year)},
		{c.cfg.AgeSelector, strconv.Itoa(sel.Age)},
		{c.cfg.MetalSelector, strings.ToLower(sel.Metal)},
	}

	for i, ctl := range controls {
		if err := c.setSelect(ctx, ctl.selector, ctl.value); err != nil {
			return fmt.Errorf("filterctl: set %s=%s: %w", ctl.selector, ctl.value, err)
		}

		// Writing a control can reset the ones before it.
		for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
			reverted, err := c.firstReverted(ctx, controls[:i+1])
			if err != nil {
				return fmt.Errorf("filterctl: verify controls: %w", err)
			}
			if reverted < 0 {
				break
			}
			if attempt == c.cfg.Retries {
				return fmt.Errorf("filterctl: %s keeps reverting after %d retries",
					controls[reverted].selector, c.cfg.Retries)
			}
			c.cfg.Logger.Debug("filterctl: control reverted, re-applying",
				"selector", controls[reverted].selector)
			if err := c.setSelect(ctx, controls[reverted].selector, controls[reverted].value); err != nil {
				return fmt.Errorf("filterctl: re-apply %s: %w", controls[reverted].selector, err)
			}
		}
	}

	if err := c.awaitSettle(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSettle, sel.String(), err)
	}
	c.cfg.Logger.Info("filterctl: selection applied", "filter", sel.String())
	return nil
}

// ControlYear renders a plan year the way the site's year control encodes
// it: two digits, 2026 -> "26".
func ControlYear(year int) string {
	return strconv.Itoa(year % 100)
}

// setSelect writes a <select> value and fires a change event; returns an
// error when the control is missing or rejects the value.
func (c *Controller) setSelect(ctx context.Context, selector, value string) error {
	res, err := c.page.Context(ctx).Eval(`(sel, val) => {
		const el = document.querySelector(sel);
		if (!el) return "missing";
		el.value = val;
		el.dispatchEvent(new Event("change", {bubbles: true}));
		return el.value === val ? "ok" : "rejected";
	}`, selector, value)
	if err != nil {
		return err
	}
	switch res.Value.Str() {
	case "ok":
		return nil
	case "missing":
		return fmt.Errorf("control %q not found", selector)
	default:
		return fmt.Errorf("control %q rejected value %q", selector, value)
	}
}

// firstReverted returns the index of the first control whose current value
// no longer matches what was applied, or -1.
func (c *Controller) firstReverted(ctx context.Context, controls []struct{ selector, value string }) (int, error) {
	for i, ctl := range controls {
		res, err := c.page.Context(ctx).Eval(`(sel) => {
			const el = document.querySelector(sel);
			return el ? el.value : "";
		}`, ctl.selector)
		if err != nil {
			return -1, err
		}
		if res.Value.Str() != ctl.value {
			return i, nil
		}
	}
	return -1, nil
}

// awaitSettle waits for the loading indicator to clear and the map subtree
// to go quiet for SettleQuiet, bounded by SettleTimeout.
func (c *Controller) awaitSettle(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.SettleTimeout)

	var lastSig string
	quietSince := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}

		res, err := c.page.Context(ctx).Eval(`(loadingSel, mapSel) => {
			const loading = document.querySelector(loadingSel);
			const visible = loading && loading.offsetParent !== null;
			const map = document.querySelector(mapSel) || document.body;
			return {loading: !!visible, sig: String(map.innerHTML.length)};
		}`, c.cfg.LoadingSelector, c.cfg.MapSelector)
		if err != nil {
			return err
		}

		loading := res.Value.Get("loading").Bool()
		sig := res.Value.Get("sig").Str()

		switch {
		case loading || sig != lastSig:
			lastSig = sig
			quietSince = time.Now()
		case !quietSince.IsZero() && time.Since(quietSince) >= c.cfg.SettleQuiet:
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("no settle signal within %s", c.cfg.SettleTimeout)
		}
	}
}
