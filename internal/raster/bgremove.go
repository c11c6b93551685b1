package raster

import "fmt"

// RemoveMode selects how ClearColor decides that a pixel belongs to the
// background.
type RemoveMode string

const (
	// RemoveMatch keys on per-channel Chebyshev distance: a pixel matches the
	// background when every channel differs from the target by at most the
	// tolerance. Chebyshev (rather than Euclidean) keeps the test in integer
	// arithmetic and gives the tolerance an exact per-channel meaning.
	RemoveMatch RemoveMode = "match"
	// RemoveNorm keys on brightness alone: a pixel matches when its integer
	// luma is within tolerance of the target's luma, regardless of hue. Meant
	// for tonally uniform but noisy backdrops.
	RemoveNorm RemoveMode = "norm"
)

// ClearColor returns a copy of buf with every background-matching pixel made
// fully transparent (alpha 0, color channels untouched). The input buffer is
// not modified; use ClearColorInPlace when the caller exclusively owns the
// buffer and wants to skip the copy.
func ClearColor(buf *PixelBuffer, target RGB, tolerance int, mode RemoveMode) (*PixelBuffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	out := buf.Clone()
	if err := ClearColorInPlace(out, target, tolerance, mode); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearColorInPlace mutates buf directly. The caller must own the buffer:
// clearing a buffer shared with a concurrent alignment would corrupt it.
func ClearColorInPlace(buf *PixelBuffer, target RGB, tolerance int, mode RemoveMode) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if tolerance < 0 || tolerance > 255 {
		return fmt.Errorf("%w: tolerance %d outside [0,255]", ErrInvalidColor, tolerance)
	}

	switch mode {
	case RemoveMatch, "":
		tr, tg, tb := int(target.R), int(target.G), int(target.B)
		for i := 0; i < len(buf.Pix); i += 4 {
			if absInt(int(buf.Pix[i])-tr) <= tolerance &&
				absInt(int(buf.Pix[i+1])-tg) <= tolerance &&
				absInt(int(buf.Pix[i+2])-tb) <= tolerance {
				buf.Pix[i+3] = 0
			}
		}
	case RemoveNorm:
		targetLuma := luma8(target.R, target.G, target.B)
		for i := 0; i < len(buf.Pix); i += 4 {
			if absInt(luma8(buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2])-targetLuma) <= tolerance {
				buf.Pix[i+3] = 0
			}
		}
	default:
		return fmt.Errorf("unknown background removal mode %q", mode)
	}
	return nil
}
