// Package surface classifies the rendering technology behind a loaded map
// widget. Vector maps expose one addressable path element per region;
// raster maps expose a single canvas and must be probed by pixel grid.
package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

// Type is the detected rendering surface.
type Type int

const (
	Undetermined Type = iota
	Vector            // many SVG path elements, one per region
	Raster            // a single large canvas covering the map viewport
)

func (t Type) String() string {
	switch t {
	case Vector:
		return "vector"
	case Raster:
		return "raster"
	}
	return "undetermined"
}

// ParseType maps an override flag value to a Type. Empty and "auto" mean
// no override.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "auto":
		return Undetermined, nil
	case "vector":
		return Vector, nil
	case "raster":
		return Raster, nil
	}
	return Undetermined, fmt.Errorf("surface: unknown type %q", s)
}

// ErrUndetermined means neither surface signature was found within the
// detection window. Fatal for the session: no strategy can proceed.
var ErrUndetermined = errors.New("surface: rendering technology undetermined")

// Options tunes detection.
type Options struct {
	// PathSelector matches the data-bearing vector elements.
	// Default: "svg path[d]".
	PathSelector string
	// MinPaths is the path count below which the vector signature is not
	// trusted (legends and icons are also SVG paths). Default: 100.
	MinPaths int
	// Wait bounds how long detection polls a still-loading page. Default: 10s.
	Wait time.Duration
	// Poll is the re-check interval while waiting. Default: 500ms.
	Poll time.Duration

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.PathSelector == "" {
		o.PathSelector = "svg path[d]"
	}
	if o.MinPaths <= 0 {
		o.MinPaths = 100
	}
	if o.Wait <= 0 {
		o.Wait = 10 * time.Second
	}
	if o.Poll <= 0 {
		o.Poll = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Detect inspects the page and returns the surface type. It polls until a
// signature appears or the wait budget is spent, then returns
// ErrUndetermined. Detect once per page load and cache the result on the
// session.
func Detect(ctx context.Context, page *rod.Page, opts Options) (Type, error) {
	opts.defaults()

	deadline := time.Now().Add(opts.Wait)
	for {
		paths, canvases, err := count(ctx, page, opts.PathSelector)
		if err != nil {
			return Undetermined, fmt.Errorf("surface: inspect page: %w", err)
		}

		t := classify(paths, canvases, opts.MinPaths)
		if t != Undetermined {
			opts.Logger.Info("surface: detected",
				"type", t.String(), "paths", paths, "canvases", canvases)
			return t, nil
		}

		if time.Now().After(deadline) {
			opts.Logger.Error("surface: no signature found",
				"paths", paths, "canvases", canvases)
			return Undetermined, ErrUndetermined
		}

		select {
		case <-ctx.Done():
			return Undetermined, ctx.Err()
		case <-time.After(opts.Poll):
		}
	}
}

// classify applies the priority rule: a trusted vector signature wins even
// when a canvas is also present (vector extraction is cheaper and precise).
func classify(paths, canvases, minPaths int) Type {
	if paths >= minPaths {
		return Vector
	}
	if canvases > 0 {
		return Raster
	}
	return Undetermined
}

func count(ctx context.Context, page *rod.Page, pathSelector string) (paths, canvases int, err error) {
	res, err := page.Context(ctx).Eval(`(sel) => {
		return {
			paths: document.querySelectorAll(sel).length,
			canvases: document.querySelectorAll("canvas").length,
		};
	}`, pathSelector)
	if err != nil {
		return 0, 0, err
	}
	return int(res.Value.Get("paths").Int()), int(res.Value.Get("canvases").Int()), nil
}
