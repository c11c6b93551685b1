package raster

import (
	"context"
	"fmt"
	"math"
)

// SearchMode selects the offset search strategy.
type SearchMode string

const (
	// SearchFast runs the multi-resolution coarse-to-fine grid search. It can
	// miss a global optimum separated from the running best by more than one
	// grid step; that speed/accuracy tradeoff is the point of the mode.
	SearchFast SearchMode = "fast"
	// SearchPrecise evaluates every offset in the valid range at step 1.
	SearchPrecise SearchMode = "precise"
)

// AlignParams configures the offset search. Values are fixed at construction;
// the two preset constructors cover the supported modes.
type AlignParams struct {
	Mode SearchMode
	// InitStep is the starting grid spacing for SearchFast.
	InitStep int
	// MinStep is the spacing at which the search terminates (the final
	// neighborhood is always evaluated exactly at this spacing).
	MinStep int
	// ExtScale widens the recentred window to best +/- step*ExtScale.
	ExtScale int
	// ChannelThreshold is the per-channel difference above which a projected
	// pixel counts as a disagreement.
	ChannelThreshold int
}

// FastParams returns the fast preset: step 20 with a halving schedule.
func FastParams() AlignParams {
	return AlignParams{Mode: SearchFast, InitStep: 20, MinStep: 1, ExtScale: 2, ChannelThreshold: 30}
}

// PreciseParams returns the exhaustive preset: step 1 over the full range.
func PreciseParams() AlignParams {
	return AlignParams{Mode: SearchPrecise, InitStep: 1, MinStep: 1, ExtScale: 1, ChannelThreshold: 30}
}

// Validate rejects structurally invalid parameters before any job runs.
func (p AlignParams) Validate() error {
	if p.InitStep < 1 || p.MinStep < 1 {
		return fmt.Errorf("align params: step sizes must be >= 1 (init %d, min %d)", p.InitStep, p.MinStep)
	}
	if p.ExtScale < 1 {
		return fmt.Errorf("align params: ext scale must be >= 1, got %d", p.ExtScale)
	}
	if p.ChannelThreshold < 0 || p.ChannelThreshold > 255 {
		return fmt.Errorf("align params: channel threshold %d outside [0,255]", p.ChannelThreshold)
	}
	switch p.Mode {
	case SearchFast, SearchPrecise:
		return nil
	default:
		return fmt.Errorf("align params: unknown mode %q", p.Mode)
	}
}

// AlignResult reports the best offset found by a search. FitPercent is always
// the best (highest) value over every position the search visited.
type AlignResult struct {
	DX, DY             int
	FitPercent         float64
	EvaluatedPositions int
}

// contentPixel is one opaque overlay pixel flattened for the scan loop.
type contentPixel struct {
	x, y    int
	r, g, b uint8
}

// candidate carries the running best through the search loop.
type candidate struct {
	dx, dy int
	dis    int
}

func (c candidate) better(dx, dy, dis int) bool {
	if dis != c.dis {
		return dis < c.dis
	}
	// Tie-break toward the no-shift position.
	return absInt(dx)+absInt(dy) < absInt(c.dx)+absInt(c.dy)
}

// window is the immutable per-iteration state of the coarse-to-fine search.
type window struct {
	x0, x1, y0, y1 int
	step           int
}

// Align finds the integer offset that minimizes pixel disagreement between
// the overlay's opaque pixels and the base. Disagreement is counted per
// pixel: any channel differing by more than ChannelThreshold, or a projection
// falling outside the base. The search never fails for lack of fit (judging
// the returned FitPercent against an acceptance floor is caller policy), but
// it does check ctx between offset evaluations and returns early with the
// best result so far when cancelled.
func Align(ctx context.Context, base, overlay *PixelBuffer, params AlignParams) (AlignResult, error) {
	if err := base.Validate(); err != nil {
		return AlignResult{}, err
	}
	if err := overlay.Validate(); err != nil {
		return AlignResult{}, err
	}
	if err := params.Validate(); err != nil {
		return AlignResult{}, err
	}

	xRange := base.W - overlay.W
	yRange := base.H - overlay.H
	if xRange < 0 || yRange < 0 {
		return AlignResult{}, fmt.Errorf("%w: overlay %dx%d, base %dx%d",
			ErrOutOfRange, overlay.W, overlay.H, base.W, base.H)
	}

	content := collectContent(overlay)
	if len(content) == 0 {
		// A fully transparent overlay agrees everywhere by definition.
		return AlignResult{DX: 0, DY: 0, FitPercent: 100}, nil
	}

	s := &searcher{
		base:      base,
		content:   content,
		threshold: params.ChannelThreshold,
		best:      candidate{dis: math.MaxInt},
	}

	var err error
	switch params.Mode {
	case SearchPrecise:
		err = s.scan(ctx, window{x0: 0, x1: xRange, y0: 0, y1: yRange, step: 1})
	default:
		err = s.coarseToFine(ctx, xRange, yRange, params)
	}

	if s.best.dis == math.MaxInt {
		// Cancelled before any offset finished; there is no best to report.
		return AlignResult{EvaluatedPositions: s.evaluated}, err
	}
	res := AlignResult{
		DX:                 s.best.dx,
		DY:                 s.best.dy,
		FitPercent:         100 * (1 - float64(s.best.dis)/float64(len(content))),
		EvaluatedPositions: s.evaluated,
	}
	return res, err
}

type searcher struct {
	base      *PixelBuffer
	content   []contentPixel
	threshold int
	best      candidate
	evaluated int
}

// coarseToFine walks the halving schedule: evaluate a sparse grid, recentre
// the window on the running best, halve the step, and finish with an exact
// pass at MinStep.
func (s *searcher) coarseToFine(ctx context.Context, xRange, yRange int, params AlignParams) error {
	step := clampInt(params.InitStep, 1, maxInt(1, maxInt(xRange, yRange)))
	win := window{x0: 0, x1: xRange, y0: 0, y1: yRange, step: step}

	for {
		if err := s.scan(ctx, win); err != nil {
			return err
		}
		if win.step <= params.MinStep {
			return nil
		}
		reach := win.step * params.ExtScale
		win = window{
			x0:   clampInt(s.best.dx-reach, 0, xRange),
			x1:   clampInt(s.best.dx+reach, 0, xRange),
			y0:   clampInt(s.best.dy-reach, 0, yRange),
			y1:   clampInt(s.best.dy+reach, 0, yRange),
			step: maxInt(params.MinStep, win.step/2),
		}
	}
}

// scan evaluates every offset of the window grid, keeping the best candidate.
// Cancellation is honored between offsets, never mid pixel scan.
func (s *searcher) scan(ctx context.Context, win window) error {
	for dy := win.y0; dy <= win.y1; dy += win.step {
		for dx := win.x0; dx <= win.x1; dx += win.step {
			if err := ctx.Err(); err != nil {
				return err
			}
			dis := s.disagreementAt(dx, dy)
			s.evaluated++
			if s.best.better(dx, dy, dis) {
				s.best = candidate{dx: dx, dy: dy, dis: dis}
			}
		}
	}
	return nil
}

// disagreementAt counts overlay pixels that disagree with the base at the
// given offset, aborting as soon as the count can no longer beat the best
// found so far (equal counts run to completion so ties can be broken).
func (s *searcher) disagreementAt(dx, dy int) int {
	limit := s.best.dis
	baseW, baseH := s.base.W, s.base.H
	pix := s.base.Pix
	dis := 0
	for _, cp := range s.content {
		bx, by := cp.x+dx, cp.y+dy
		if bx < 0 || bx >= baseW || by < 0 || by >= baseH {
			dis++
		} else {
			i := (by*baseW + bx) * 4
			if absInt(int(pix[i])-int(cp.r)) > s.threshold ||
				absInt(int(pix[i+1])-int(cp.g)) > s.threshold ||
				absInt(int(pix[i+2])-int(cp.b)) > s.threshold {
				dis++
			}
		}
		if dis > limit {
			return dis
		}
	}
	return dis
}

// collectContent flattens the overlay's opaque pixels so the per-offset scan
// touches only meaningful pixels (the background has already been keyed out).
func collectContent(overlay *PixelBuffer) []contentPixel {
	var content []contentPixel
	i := 0
	for y := 0; y < overlay.H; y++ {
		for x := 0; x < overlay.W; x++ {
			if overlay.Pix[i+3] >= alphaFloor {
				content = append(content, contentPixel{
					x: x, y: y,
					r: overlay.Pix[i], g: overlay.Pix[i+1], b: overlay.Pix[i+2],
				})
			}
			i += 4
		}
	}
	return content
}
