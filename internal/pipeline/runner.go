package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"

	"cgmatch/internal/config"
	"cgmatch/internal/imageio"
	"cgmatch/internal/logging"
	"cgmatch/internal/match"
	"cgmatch/internal/raster"
	"cgmatch/internal/report"
)

// PairRunner implements Processor. It loads the pair, strips the diff's
// backdrop, searches for the best offset and writes the composed result.
type PairRunner struct {
	log       *slog.Logger
	cache     *imageio.Cache
	bg        config.Background
	align     raster.AlignParams
	minFit    float64
	outputDir string
}

// NewPairRunner builds a runner from config. The cache is shared across
// workers so a base reused by many diffs is decoded once.
func NewPairRunner(logger *slog.Logger, cfg *config.Config, outputDir string) *PairRunner {
	return &PairRunner{
		log:       logger,
		cache:     imageio.NewCache(),
		bg:        cfg.Background,
		align:     alignParams(cfg.Alignment),
		minFit:    cfg.Alignment.MinFitPercent,
		outputDir: outputDir,
	}
}

func alignParams(a config.Alignment) raster.AlignParams {
	params := raster.FastParams()
	if a.Mode == "precise" {
		params = raster.PreciseParams()
	}
	if a.InitStep > 0 {
		params.InitStep = a.InitStep
	}
	if a.MinStep > 0 {
		params.MinStep = a.MinStep
	}
	if a.ExtScale > 0 {
		params.ExtScale = a.ExtScale
	}
	params.ChannelThreshold = a.ChannelThreshold
	return params
}

// Process runs one pair end to end. It never panics on bad input; every
// failure maps to a report reason.
func (r *PairRunner) Process(ctx context.Context, job match.PairJob) report.Item {
	item := report.Item{BasePath: job.BasePath, DiffPath: job.DiffPath}

	switch job.Status {
	case match.StatusAmbiguous:
		item.Status = report.StatusSkipped
		item.Reason = report.ReasonAmbiguous
		item.Detail = job.Reason
		return item
	case match.StatusUnmatched:
		item.Status = report.StatusSkipped
		item.Reason = report.ReasonNoMatch
		item.Detail = job.Reason
		return item
	}

	base, err := r.cache.Load(job.BasePath)
	if err != nil {
		return fail(item, report.ReasonReadFail, err)
	}
	diff, err := r.cache.Load(job.DiffPath)
	if err != nil {
		return fail(item, report.ReasonReadFail, err)
	}
	if diff.W > base.W || diff.H > base.H {
		return fail(item, report.ReasonSizeInvalid,
			fmt.Errorf("diff %dx%d exceeds base %dx%d", diff.W, diff.H, base.W, base.H))
	}

	target, err := r.resolveBackground(diff)
	if err != nil {
		return fail(item, report.ReasonBgRemoveFail, err)
	}
	cleared, err := raster.ClearColor(diff, target, int(r.bg.Tolerance), raster.RemoveMode(r.bg.Mode))
	if err != nil {
		return fail(item, report.ReasonBgRemoveFail, err)
	}

	res, err := raster.Align(ctx, base, cleared, r.align)
	if err != nil {
		if errors.Is(err, raster.ErrOutOfRange) {
			return fail(item, report.ReasonSizeInvalid, err)
		}
		return fail(item, report.ReasonAlignFail, err)
	}
	item.DX, item.DY, item.FitPercent = res.DX, res.DY, res.FitPercent
	if r.minFit > 0 && res.FitPercent < r.minFit {
		return fail(item, report.ReasonAlignFail,
			fmt.Errorf("best fit %.2f%% below minimum %.2f%%", res.FitPercent, r.minFit))
	}
	logging.LogProcessingStep(r.log, job.DiffPath, "align", "done", map[string]any{
		"dx":        res.DX,
		"dy":        res.DY,
		"fit":       res.FitPercent,
		"evaluated": res.EvaluatedPositions,
	})

	composed, err := raster.Compose(base, cleared, res.DX, res.DY)
	if err != nil {
		return fail(item, report.ReasonAlignFail, err)
	}

	item.OutputPath = filepath.Join(r.outputDir, pngName(job.OutputRelPath))
	if err := imageio.Save(composed, item.OutputPath); err != nil {
		return fail(item, report.ReasonWriteFail, err)
	}

	item.Status = report.StatusSuccess
	return item
}

// resolveBackground turns the configured color into a concrete RGB, running
// detection on the diff when set to auto.
func (r *PairRunner) resolveBackground(diff *raster.PixelBuffer) (raster.RGB, error) {
	switch strings.ToLower(r.bg.Color) {
	case "", "auto":
		strategy := raster.DetectHistogram
		if r.bg.Detector == "cluster" {
			strategy = raster.DetectCluster
		}
		rgb, kind, err := raster.DetectBackground(diff, strategy)
		if err != nil {
			return raster.RGB{}, err
		}
		// Snap near-black and near-white detections to the exact fill value.
		switch kind {
		case raster.BgBlack:
			return raster.RGB{}, nil
		case raster.BgWhite:
			return raster.RGB{R: 255, G: 255, B: 255}, nil
		}
		return rgb, nil
	case "black":
		return raster.RGB{}, nil
	case "white":
		return raster.RGB{R: 255, G: 255, B: 255}, nil
	default:
		return ParseColor(r.bg.Color)
	}
}

// ParseColor parses a #rrggbb (or rrggbb) string into an RGB value.
func ParseColor(s string) (raster.RGB, error) {
	hex := s
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return raster.RGB{}, fmt.Errorf("%w: %q", raster.ErrInvalidColor, s)
	}
	r8, g8, b8 := c.RGB255()
	return raster.RGB{R: r8, G: g8, B: b8}, nil
}

// pngName swaps the extension for .png, the only output format written.
func pngName(rel string) string {
	ext := filepath.Ext(rel)
	return rel[:len(rel)-len(ext)] + ".png"
}

func fail(item report.Item, reason string, err error) report.Item {
	item.Status = report.StatusFailed
	item.Reason = reason
	item.Detail = err.Error()
	return item
}
