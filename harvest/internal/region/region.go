// Package region enumerates the interaction targets for one extraction
// pass. A vector surface yields one addressable element per region; a
// raster surface yields a row-major pixel grid over the map bounding box.
// Both enumerators are lazy, finite and restartable: a failed sub-range
// can be retried with Seek without re-walking from zero.
package region

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
)

// Target is one interaction point. Opaque outside this package and the
// tooltip reader: the parser and record store never look inside it.
type Target interface {
	// Describe renders the target for logs and failure reports.
	Describe() string
}

// Element addresses one vector path by selector and document order. The
// element is re-resolved at interaction time, so enumeration survives a
// page re-render between targets.
type Element struct {
	Selector string
	Index    int
}

func (e Element) Describe() string {
	return fmt.Sprintf("element %s[%d]", e.Selector, e.Index)
}

// Pixel addresses one viewport coordinate on a raster surface.
type Pixel struct {
	X, Y float64
}

func (p Pixel) Describe() string {
	return fmt.Sprintf("pixel (%.0f, %.0f)", p.X, p.Y)
}

// Enumerator walks a finite target sequence.
type Enumerator interface {
	// Next returns the target at the cursor and advances. ok is false
	// when the sequence is exhausted.
	Next() (t Target, ok bool)
	// Seek positions the cursor at an absolute index, clamped to [0, Len].
	Seek(n int)
	// Pos returns the cursor position, i.e. how many targets were handed out.
	Pos() int
	// Len is the total sequence length.
	Len() int
}

// Vector builds an enumerator over the path elements currently matching
// the selector. Count is sampled once; elements are addressed by index
// and re-resolved lazily at read time.
func Vector(ctx context.Context, page *rod.Page, selector string) (Enumerator, error) {
	res, err := page.Context(ctx).Eval(`(sel) => document.querySelectorAll(sel).length`, selector)
	if err != nil {
		return nil, fmt.Errorf("region: count vector elements: %w", err)
	}
	n := int(res.Value.Int())
	if n == 0 {
		return nil, fmt.Errorf("region: no elements match %q", selector)
	}
	return &vectorEnum{selector: selector, n: n}, nil
}

type vectorEnum struct {
	selector string
	n        int
	pos      int
}

func (v *vectorEnum) Next() (Target, bool) {
	if v.pos >= v.n {
		return nil, false
	}
	t := Element{Selector: v.selector, Index: v.pos}
	v.pos++
	return t, true
}

func (v *vectorEnum) Seek(n int) { v.pos = clamp(n, v.n) }
func (v *vectorEnum) Pos() int   { return v.pos }
func (v *vectorEnum) Len() int   { return v.n }

// Box is the map's viewport bounding box in CSS pixels.
type Box struct {
	X, Y, W, H float64
}

// Raster builds a row-major grid enumerator over the box with the given
// step. The step bounds an otherwise unbounded pixel search: it must stay
// below the smallest region's on-screen extent or that region is skipped.
// Coarser steps trade completeness for speed; the grid has exactly
// ceil(W/step) x ceil(H/step) targets.
func Raster(box Box, step float64) (Enumerator, error) {
	if step <= 0 {
		return nil, fmt.Errorf("region: grid step %v must be positive", step)
	}
	if box.W <= 0 || box.H <= 0 {
		return nil, fmt.Errorf("region: degenerate bounding box %+v", box)
	}
	return &rasterEnum{
		box:  box,
		step: step,
		cols: ceilDiv(box.W, step),
		rows: ceilDiv(box.H, step),
	}, nil
}

type rasterEnum struct {
	box        Box
	step       float64
	cols, rows int
	pos        int
}

func (r *rasterEnum) Next() (Target, bool) {
	if r.pos >= r.Len() {
		return nil, false
	}
	col := r.pos % r.cols
	row := r.pos / r.cols
	r.pos++
	return Pixel{
		X: r.box.X + float64(col)*r.step,
		Y: r.box.Y + float64(row)*r.step,
	}, true
}

func (r *rasterEnum) Seek(n int) { r.pos = clamp(n, r.Len()) }
func (r *rasterEnum) Pos() int   { return r.pos }
func (r *rasterEnum) Len() int   { return r.cols * r.rows }

func ceilDiv(extent, step float64) int {
	n := int(extent / step)
	if float64(n)*step < extent {
		n++
	}
	return n
}

func clamp(n, max int) int {
	if n < 0 {
		return 0
	}
	if n > max {
		return max
	}
	return n
}

// MapBox queries the bounding box of the map container element.
func MapBox(ctx context.Context, page *rod.Page, selector string) (Box, error) {
	res, err := page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return {x: r.x, y: r.y, w: r.width, h: r.height};
	}`, selector)
	if err != nil {
		return Box{}, fmt.Errorf("region: query map box: %w", err)
	}
	if res.Value.Nil() {
		return Box{}, fmt.Errorf("region: map container %q not found", selector)
	}
	return Box{
		X: res.Value.Get("x").Num(),
		Y: res.Value.Get("y").Num(),
		W: res.Value.Get("w").Num(),
		H: res.Value.Get("h").Num(),
	}, nil
}
