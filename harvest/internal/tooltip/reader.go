// Package tooltip drives hover interactions and turns the resulting
// tooltip text into typed premium records. The tooltip element is shared
// mutable page state, so each read walks an explicit state machine
// (idle -> triggered -> visible -> dismissed) instead of a bare text grab:
// a read is only accepted once the text provably belongs to the current
// target and not to a stuck tooltip from the previous one.
package tooltip

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/ichramap/harvest/internal/region"
)

// ErrNoTooltip means no tooltip became visible within the attempt budget.
// Recoverable: the target is recorded as no-data.
var ErrNoTooltip = errors.New("tooltip: no tooltip observed")

type readState int

const (
	stateIdle readState = iota
	stateTriggered
	stateVisible
	stateDismissed
)

// Config tunes the reader.
type Config struct {
	// Selectors is the prioritized list of tooltip-like elements. The
	// first visible match carrying premium-looking text wins.
	Selectors []string
	// Attempts is the per-target poll budget. Default: 3.
	Attempts int
	// Poll is the base wait between polls; each retry backs off by the
	// same amount again. Default: 60ms.
	Poll time.Duration
	// Park is the neutral point the pointer moves to between targets so
	// the previous tooltip dismisses. Default: (0, 0).
	Park region.Pixel

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if len(c.Selectors) == 0 {
		c.Selectors = DefaultSelectors()
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.Poll <= 0 {
		c.Poll = 60 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// DefaultSelectors is the recognized tooltip selector set, most specific
// first. The leading entry is the source map's own tooltip node.
func DefaultSelectors() []string {
	return []string{
		"#ichra-tip",
		".mapboxgl-popup-content",
		".leaflet-popup-content",
		"[role='tooltip']",
		"[class*='tooltip']",
		"[class*='popup']",
	}
}

// Reader performs hover-and-read cycles against one page. Not safe for
// concurrent use: the pointer and the tooltip are page-global state.
type Reader struct {
	page *rod.Page
	cfg  Config

	state    readState
	lastText string // text of the previously accepted read
}

// NewReader creates a Reader for the page.
func NewReader(page *rod.Page, cfg Config) *Reader {
	cfg.defaults()
	return &Reader{page: page, cfg: cfg, state: stateIdle}
}

// Read triggers a hover at the target and returns the tooltip text, or
// ErrNoTooltip after the poll budget. Purely a read: nothing persisted.
func (r *Reader) Read(ctx context.Context, t region.Target) (string, error) {
	// Only an unconfirmed dismissal leaves the previous text suspect. A
	// confirmed dismissal means an identical read on the next target is
	// a genuine repeat (raster neighbors of the same region), not a
	// stuck tooltip.
	stale := r.staleBaseline()

	if err := r.trigger(ctx, t); err != nil {
		return "", fmt.Errorf("tooltip: trigger %s: %w", t.Describe(), err)
	}
	r.state = stateTriggered

	text, err := r.awaitVisible(ctx, stale)
	if err != nil {
		r.state = stateIdle
		return "", err
	}
	r.state = stateVisible
	r.lastText = text

	// Park the pointer so this tooltip cannot contaminate the next read.
	dismissed, err := r.dismiss(ctx)
	if err != nil {
		r.cfg.Logger.Debug("tooltip: dismiss failed", "error", err)
	}
	if dismissed {
		r.state = stateDismissed
	}
	return text, nil
}

// staleBaseline is the text awaitVisible must treat as possibly stuck:
// the previous read's text when its dismissal was never confirmed, empty
// otherwise.
func (r *Reader) staleBaseline() string {
	if r.state == stateVisible {
		return r.lastText
	}
	return ""
}

func (r *Reader) trigger(ctx context.Context, t region.Target) error {
	switch tgt := t.(type) {
	case region.Pixel:
		return r.page.Context(ctx).Mouse.MoveTo(proto.Point{X: tgt.X, Y: tgt.Y})
	case region.Element:
		els, err := r.page.Context(ctx).Elements(tgt.Selector)
		if err != nil {
			return err
		}
		if tgt.Index >= len(els) {
			return fmt.Errorf("element index %d out of range (%d matches)", tgt.Index, len(els))
		}
		return els[tgt.Index].Hover()
	}
	return fmt.Errorf("unsupported target %T", t)
}

// awaitVisible polls the tooltip selectors with linear backoff. stale is
// the previous read's text when that tooltip was never seen dismissing;
// identical text straight after a hover is then indistinguishable from a
// stuck tooltip and is re-polled.
func (r *Reader) awaitVisible(ctx context.Context, stale string) (string, error) {
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * r.cfg.Poll):
		}

		text, err := r.visibleText(ctx)
		if err != nil {
			return "", err
		}
		if text == "" {
			// Previous tooltip gone; whatever appears next is fresh.
			stale = ""
			continue
		}
		if text == stale {
			continue
		}
		return text, nil
	}
	return "", ErrNoTooltip
}

// visibleText returns the first visible tooltip's text, or "".
func (r *Reader) visibleText(ctx context.Context) (string, error) {
	for _, sel := range r.cfg.Selectors {
		els, err := r.page.Context(ctx).Elements(sel)
		if err != nil {
			return "", fmt.Errorf("query %q: %w", sel, err)
		}
		for _, el := range els {
			vis, err := el.Visible()
			if err != nil || !vis {
				continue
			}
			text, err := el.Text()
			if err != nil {
				continue
			}
			if looksLikePremium(text) {
				return text, nil
			}
		}
	}
	return "", nil
}

// dismiss parks the pointer and waits briefly for the tooltip to clear.
// Returns whether the dismissal was actually observed; a stuck tooltip
// reports false so the next read treats the lingering text as stale.
func (r *Reader) dismiss(ctx context.Context) (bool, error) {
	if err := r.page.Context(ctx).Mouse.MoveTo(proto.Point{X: r.cfg.Park.X, Y: r.cfg.Park.Y}); err != nil {
		return false, err
	}
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(r.cfg.Poll):
		}
		text, err := r.visibleText(ctx)
		if err != nil {
			return false, err
		}
		if text == "" || text != r.lastText {
			return true, nil
		}
	}
	return false, nil
}

// looksLikePremium filters generic page chrome that matches the broad
// tooltip selectors.
func looksLikePremium(text string) bool {
	return strings.Contains(text, "$") ||
		strings.Contains(text, "Individual") ||
		strings.Contains(text, "Small Group")
}
