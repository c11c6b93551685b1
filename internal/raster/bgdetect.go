package raster

import (
	"fmt"
	"image/color"
	"math"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

// BgKind classifies a detected background color.
type BgKind string

const (
	BgBlack  BgKind = "black"
	BgWhite  BgKind = "white"
	BgCustom BgKind = "custom"
)

// DetectStrategy selects how DetectBackground finds the backdrop color.
type DetectStrategy string

const (
	// DetectHistogram picks the most frequent quantized opaque color.
	DetectHistogram DetectStrategy = "histogram"
	// DetectCluster runs k-means over subsampled opaque pixels and picks the
	// most populated cluster center. Slower, but steadier on noisy scans.
	DetectCluster DetectStrategy = "cluster"
)

const clusterSampleBudget = 12000

// DetectBackground finds the probable backdrop color of an overlay so it can
// be keyed out. The returned kind tells callers whether the color is close
// enough to pure black or white to report it that way.
func DetectBackground(buf *PixelBuffer, strategy DetectStrategy) (RGB, BgKind, error) {
	if err := buf.Validate(); err != nil {
		return RGB{}, BgCustom, err
	}

	var bg RGB
	switch strategy {
	case DetectCluster:
		c, err := clusterBackground(buf)
		if err != nil {
			return RGB{}, BgCustom, err
		}
		bg = c
	case DetectHistogram, "":
		c, err := histogramBackground(buf)
		if err != nil {
			return RGB{}, BgCustom, err
		}
		bg = c
	default:
		return RGB{}, BgCustom, fmt.Errorf("unknown background detect strategy %q", strategy)
	}
	return bg, classifyBg(bg), nil
}

// histogramBackground averages the pixels of the most populated quantization
// bucket. Averaging instead of reporting the bucket center keeps a uniform
// backdrop exact, so the removal tolerance is spent on real noise.
func histogramBackground(buf *PixelBuffer) (RGB, error) {
	var count [512]int
	var sumR, sumG, sumB [512]int64
	for i := 0; i < len(buf.Pix); i += 4 {
		if buf.Pix[i+3] < alphaFloor {
			continue
		}
		b := quantBucket(buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2])
		count[b]++
		sumR[b] += int64(buf.Pix[i])
		sumG[b] += int64(buf.Pix[i+1])
		sumB[b] += int64(buf.Pix[i+2])
	}

	best, n := 0, 0
	for b, c := range count {
		if c > n {
			best, n = b, c
		}
	}
	if n == 0 {
		return RGB{}, fmt.Errorf("%w: no opaque pixels", ErrInvalidImage)
	}
	return RGB{
		R: uint8((sumR[best] + int64(n)/2) / int64(n)),
		G: uint8((sumG[best] + int64(n)/2) / int64(n)),
		B: uint8((sumB[best] + int64(n)/2) / int64(n)),
	}, nil
}

// VibrantColor reports the perceptually dominant color of an image using
// Chromium's color analysis, which discounts near-black and near-white
// pixels. It is a diagnostic aid, not a backdrop detector.
func VibrantColor(buf *PixelBuffer) (RGB, error) {
	if err := buf.Validate(); err != nil {
		return RGB{}, err
	}
	c := dominantcolor.Find(buf.Image())
	return RGB{R: c.R, G: c.G, B: c.B}, nil
}

// classifyBg buckets a color as black, white, or custom by linear luminance.
func classifyBg(c RGB) BgKind {
	col, _ := colorful.MakeColor(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
	r, g, b := col.LinearRgb()
	y := 0.2126*r + 0.7152*g + 0.0722*b
	switch {
	case y < 0.012: // ~ luma 30 on the 8-bit scale
		return BgBlack
	case y > 0.76: // ~ luma 225
		return BgWhite
	default:
		return BgCustom
	}
}

func clusterBackground(buf *PixelBuffer) (RGB, error) {
	total := buf.W * buf.H
	step := 1
	if total > clusterSampleBudget {
		step = int(math.Sqrt(float64(total)/float64(clusterSampleBudget))) + 1
	}

	dataset := make(clusters.Observations, 0, minInt(total, clusterSampleBudget))
	for y := 0; y < buf.H; y += step {
		for x := 0; x < buf.W; x += step {
			i := (y*buf.W + x) * 4
			if buf.Pix[i+3] < alphaFloor {
				continue
			}
			dataset = append(dataset, clusters.Coordinates{
				float64(buf.Pix[i]) / 255.0,
				float64(buf.Pix[i+1]) / 255.0,
				float64(buf.Pix[i+2]) / 255.0,
			})
		}
	}
	if len(dataset) == 0 {
		return RGB{}, fmt.Errorf("%w: no opaque pixels to cluster", ErrInvalidImage)
	}

	k := minInt(4, len(dataset))
	km := kmeans.New()
	cc, err := km.Partition(dataset, k)
	if err != nil || len(cc) == 0 {
		return RGB{}, fmt.Errorf("background clustering failed: %w", err)
	}

	biggest := cc[0]
	for _, c := range cc[1:] {
		if len(c.Observations) > len(biggest.Observations) {
			biggest = c
		}
	}
	center := biggest.Center
	if len(center) < 3 {
		return RGB{}, fmt.Errorf("background clustering returned a degenerate center")
	}
	return RGB{
		R: uint8(clampInt(int(center[0]*255+0.5), 0, 255)),
		G: uint8(clampInt(int(center[1]*255+0.5), 0, 255)),
		B: uint8(clampInt(int(center[2]*255+0.5), 0, 255)),
	}, nil
}
