package raster

// ImageFeatures is a read-only snapshot of one buffer used for background
// autodetection and base/diff classification. It is computed once per image
// and cached by the caller for the duration of a matching run.
type ImageFeatures struct {
	// EffectivePixelRatio is the fraction of pixels that carry content:
	// opaque and neither near-black nor near-white under the provisional
	// backdrop colors.
	EffectivePixelRatio float64
	// DominantFillColor is the most frequent opaque color after channel
	// quantization.
	DominantFillColor RGB
	// DominantFillRatio is the fraction of pixels in the dominant color's
	// quantization bucket.
	DominantFillRatio float64
	// LargestFillComponentRatio is the fraction of pixels belonging to the
	// largest 4-connected region of the fill color.
	LargestFillComponentRatio float64
}

const (
	// Quantization keeps 8 levels per channel so anti-aliased halos around
	// flat fills still land in the dominant bucket.
	quantShift = 5 // 256 >> 5 = 8 levels
	quantStep  = 1 << quantShift

	// Luma cutoffs for the provisional black/white backdrop masks.
	blackLuma = 8
	whiteLuma = 247

	// Alpha below this is treated as fully transparent.
	alphaFloor = 8

	// A black or white mask covering at least this much of the image is
	// preferred over the dominant-bucket mask when picking the fill region.
	plainFillRatio = 0.25
)

// luma8 computes integer perceptual brightness from 8-bit channels.
func luma8(r, g, b uint8) int {
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}

func quantBucket(r, g, b uint8) int {
	return int(r>>quantShift)<<6 | int(g>>quantShift)<<3 | int(b>>quantShift)
}

func bucketCenter(bucket int) RGB {
	return RGB{
		R: uint8((bucket>>6)&7)<<quantShift + quantStep/2,
		G: uint8((bucket>>3)&7)<<quantShift + quantStep/2,
		B: uint8(bucket&7)<<quantShift + quantStep/2,
	}
}

// Extract computes ImageFeatures in two passes: one linear scan for the
// opacity ratio and the quantized color histogram, then a worklist flood fill
// over the fill mask for the largest 4-connected component. The input buffer
// is never mutated.
func Extract(buf *PixelBuffer) (ImageFeatures, error) {
	if err := buf.Validate(); err != nil {
		return ImageFeatures{}, err
	}

	total := buf.W * buf.H
	var hist [512]int
	effective := 0
	blackCount := 0
	whiteCount := 0

	// Flat masks for the flood-fill pass. One byte per pixel keeps the
	// auxiliary space at a single label array as required.
	inBlack := make([]bool, total)
	inWhite := make([]bool, total)
	bucketOf := make([]int16, total)

	for p := 0; p < total; p++ {
		i := p * 4
		r, g, b, a := buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3]
		if a < alphaFloor {
			bucketOf[p] = -1
			continue
		}
		bucket := quantBucket(r, g, b)
		hist[bucket]++
		bucketOf[p] = int16(bucket)

		y := luma8(r, g, b)
		switch {
		case y <= blackLuma:
			inBlack[p] = true
			blackCount++
		case y >= whiteLuma:
			inWhite[p] = true
			whiteCount++
		default:
			effective++
		}
	}

	domBucket, domCount := 0, 0
	for bucket, n := range hist {
		if n > domCount {
			domBucket, domCount = bucket, n
		}
	}

	feats := ImageFeatures{
		EffectivePixelRatio: float64(effective) / float64(total),
		DominantFillColor:   bucketCenter(domBucket),
		DominantFillRatio:   float64(domCount) / float64(total),
	}

	// Pick the fill mask: a big plain black or white backdrop wins, otherwise
	// fall back to the dominant quantization bucket.
	blackRatio := float64(blackCount) / float64(total)
	whiteRatio := float64(whiteCount) / float64(total)
	var member func(p int) bool
	switch {
	case blackRatio >= plainFillRatio && blackRatio >= whiteRatio:
		member = func(p int) bool { return inBlack[p] }
	case whiteRatio >= plainFillRatio:
		member = func(p int) bool { return inWhite[p] }
	default:
		db := int16(domBucket)
		member = func(p int) bool { return bucketOf[p] == db }
	}

	feats.LargestFillComponentRatio = float64(largestComponent(buf.W, buf.H, member)) / float64(total)
	return feats, nil
}

// largestComponent returns the pixel count of the largest 4-connected region
// of mask members. An explicit worklist bounds stack use on large images.
func largestComponent(w, h int, member func(p int) bool) int {
	total := w * h
	visited := make([]bool, total)
	var work []int
	best := 0

	for start := 0; start < total; start++ {
		if visited[start] || !member(start) {
			continue
		}
		size := 0
		visited[start] = true
		work = append(work[:0], start)
		for len(work) > 0 {
			p := work[len(work)-1]
			work = work[:len(work)-1]
			size++

			x, y := p%w, p/w
			if x > 0 {
				if q := p - 1; !visited[q] && member(q) {
					visited[q] = true
					work = append(work, q)
				}
			}
			if x < w-1 {
				if q := p + 1; !visited[q] && member(q) {
					visited[q] = true
					work = append(work, q)
				}
			}
			if y > 0 {
				if q := p - w; !visited[q] && member(q) {
					visited[q] = true
					work = append(work, q)
				}
			}
			if y < h-1 {
				if q := p + w; !visited[q] && member(q) {
					visited[q] = true
					work = append(work, q)
				}
			}
		}
		if size > best {
			best = size
		}
	}
	return best
}
