package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a Rod page with harvest-specific setup: stealth, resource
// blocking, navigation, and scrolling the map widget into the viewport.
type Tab struct {
	Page    *rod.Page
	PageURL string
}

// OpenTab creates a stealthed tab and navigates to the URL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.Blocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.Blocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL}, nil
}

// ScrollIntoView scrolls the element matching the selector to the middle
// of the viewport; hover coordinates are viewport-relative, so the map
// must be on screen before enumeration starts.
func (t *Tab) ScrollIntoView(ctx context.Context, selector string) error {
	res, err := t.Page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) return false;
		el.scrollIntoView({block: "center"});
		return true;
	}`, selector)
	if err != nil {
		return fmt.Errorf("browser: scroll to %q: %w", selector, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("browser: element %q not found", selector)
	}
	return nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}

// applyResourceBlocking sets up request interception to drop the listed
// resource types.
func applyResourceBlocking(page *rod.Page, types []string) error {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return nil
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)

	// Map resource types to config names.
	switch lower {
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	}
	return blockSet[lower]
}
