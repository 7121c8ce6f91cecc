// Package directfetch pulls the county premium dataset the map widget
// renders from its published JSON endpoint, skipping the browser
// entirely. It is the preferred path when the endpoint is reachable;
// callers fall back to the harvest engine when it is not.
package directfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hazyhaar/ichramap/harvest/premium"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	defaultPageURL   = "https://ideonapi.com/ideon-ichra-insights-by-state/"
)

// Config for the direct JSON client.
type Config struct {
	// DataURL is the county premiums JSON endpoint. Leave empty to
	// discover it from PageURL at fetch time.
	DataURL string `yaml:"data_url"`
	// PageURL is the map page scanned by Discover when DataURL is unset.
	PageURL string `yaml:"page_url"`

	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.DataURL == "" && c.PageURL == "" {
		c.PageURL = defaultPageURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client fetches and decodes the published dataset.
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *slog.Logger
}

// New builds a Client.
func New(cfg Config) *Client {
	cfg.defaults()

	http := resty.New()
	http.SetTimeout(cfg.Timeout)
	http.SetHeader("user-agent", cfg.UserAgent)

	return &Client{cfg: cfg, http: http, logger: cfg.Logger}
}

// rawRecord is one row of the published JSON. Field names are the
// endpoint's compressed keys; premium values may be null for regions
// without published data.
type rawRecord struct {
	FIPS       string   `json:"f"`
	Name       string   `json:"n"`
	State      string   `json:"st"`
	Year       int      `json:"year"` // two-digit code, 26 = 2026
	Age        int      `json:"age"`
	Level      string   `json:"lvl"`
	Individual *float64 `json:"i"`
	SmallGroup *float64 `json:"s"`
	Difference *float64 `json:"d"`
}

// Fetch downloads the full dataset and converts every row to a typed
// record. Rows that do not form a valid filter selection are skipped and
// counted, not fatal: the endpoint has carried stray rows before.
func (c *Client) Fetch(ctx context.Context) ([]premium.Premium, error) {
	url := c.cfg.DataURL
	if url == "" {
		var err error
		url, err = c.Discover(ctx)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("directfetch: get %s: %w", url, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("directfetch: get %s: status %d", url, resp.StatusCode())
	}

	var rows []rawRecord
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("directfetch: decode %s: %w", url, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("directfetch: %s: empty dataset", url)
	}

	records := make([]premium.Premium, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		rec, err := row.convert()
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		c.logger.Warn("directfetch: skipped malformed rows",
			"url", url, "skipped", skipped, "kept", len(records))
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("directfetch: %s: no convertible rows", url)
	}

	c.logger.Info("directfetch: dataset loaded", "url", url, "records", len(records))
	return records, nil
}

// convert maps a raw row to a typed record. The difference is always
// recomputed from the two premiums rather than trusted from the payload.
func (r rawRecord) convert() (premium.Premium, error) {
	sel := premium.FilterSelection{
		Year:  2000 + r.Year,
		Age:   r.Age,
		Metal: strings.ToLower(r.Level),
	}
	if err := sel.Validate(); err != nil {
		return premium.Premium{}, fmt.Errorf("directfetch: row %s: %w", r.FIPS, err)
	}
	if r.Name == "" || r.State == "" {
		return premium.Premium{}, fmt.Errorf("directfetch: row %s: missing region identity", r.FIPS)
	}

	rec := premium.Premium{
		Key: premium.RegionKey{
			Region: premium.NormalizeRegion(r.Name),
			Parent: strings.ToUpper(r.State),
		},
		Individual: r.Individual,
		SmallGroup: r.SmallGroup,
		Filter:     sel,
	}
	rec.Derive()
	return rec, nil
}

// Load fetches the dataset and folds it into a store, returning the
// store and the count of new records.
func (c *Client) Load(ctx context.Context, store *premium.Store) (int, error) {
	records, err := c.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, rec := range records {
		if store.Put(rec) == premium.PutNew {
			added++
		}
	}
	return added, nil
}
