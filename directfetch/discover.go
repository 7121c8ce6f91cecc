package directfetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoDataURL means the page no longer references a recognizable
// dataset endpoint; the caller should fall back to the harvest engine.
var ErrNoDataURL = fmt.Errorf("directfetch: no dataset URL found in page")

// The dataset file is republished under a dated name; match the stable
// stem rather than a full URL.
var dataHrefRe = regexp.MustCompile(`["']([^"']*county_lowest_premiums[^"']*\.json)["']`)

// Discover fetches the map page and scans it for the county premiums
// JSON href: script src attributes first, then inline script bodies.
// A relative match is resolved against the page URL.
func (c *Client) Discover(ctx context.Context) (string, error) {
	if c.cfg.PageURL == "" {
		return "", fmt.Errorf("directfetch: no page URL configured")
	}

	resp, err := c.http.R().SetContext(ctx).Get(c.cfg.PageURL)
	if err != nil {
		return "", fmt.Errorf("directfetch: get page %s: %w", c.cfg.PageURL, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("directfetch: get page %s: status %d", c.cfg.PageURL, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return "", fmt.Errorf("directfetch: parse page %s: %w", c.cfg.PageURL, err)
	}

	found := ""
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src, ok := s.Attr("src"); ok && strings.Contains(src, "county_lowest_premiums") {
			found = src
			return false
		}
		if m := dataHrefRe.FindStringSubmatch(s.Text()); m != nil {
			found = m[1]
			return false
		}
		return true
	})
	if found == "" {
		// Some builds inline the href outside script tags (data
		// attributes, link preloads).
		if m := dataHrefRe.FindStringSubmatch(string(resp.Body())); m != nil {
			found = m[1]
		}
	}
	if found == "" {
		return "", ErrNoDataURL
	}

	resolved, err := c.resolve(found)
	if err != nil {
		return "", err
	}
	c.logger.Info("directfetch: dataset URL discovered", "url", resolved)
	return resolved, nil
}

func (c *Client) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("directfetch: bad dataset href %q: %w", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(c.cfg.PageURL)
	if err != nil {
		return "", fmt.Errorf("directfetch: bad page URL %q: %w", c.cfg.PageURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}
