package raster

import (
	"errors"
	"math"
	"testing"
)

func uniformBuffer(w, h int, r, g, b, a uint8) *PixelBuffer {
	buf := NewPixelBuffer(w, h)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i] = r
		buf.Pix[i+1] = g
		buf.Pix[i+2] = b
		buf.Pix[i+3] = a
	}
	return buf
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestExtractUniformGray(t *testing.T) {
	buf := uniformBuffer(10, 10, 128, 128, 128, 255)

	feats, err := Extract(buf)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !almostEqual(feats.EffectivePixelRatio, 1.0) {
		t.Fatalf("expected effective ratio 1.0, got %v", feats.EffectivePixelRatio)
	}
	if !almostEqual(feats.DominantFillRatio, 1.0) {
		t.Fatalf("expected dominant ratio 1.0, got %v", feats.DominantFillRatio)
	}
	// 128 lands in bucket 4 of 8; the reported color is the bucket center.
	want := RGB{R: 144, G: 144, B: 144}
	if feats.DominantFillColor != want {
		t.Fatalf("expected dominant color %+v, got %+v", want, feats.DominantFillColor)
	}
	if !almostEqual(feats.LargestFillComponentRatio, 1.0) {
		t.Fatalf("expected component ratio 1.0, got %v", feats.LargestFillComponentRatio)
	}
}

func TestExtractBlackWhiteSplit(t *testing.T) {
	// Top half pure black, bottom half pure white. Neither counts as
	// effective content, and the fill mask follows the black backdrop.
	buf := NewPixelBuffer(10, 10)
	for p := 0; p < 100; p++ {
		i := p * 4
		v := uint8(0)
		if p >= 50 {
			v = 255
		}
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = v, v, v, 255
	}

	feats, err := Extract(buf)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !almostEqual(feats.EffectivePixelRatio, 0) {
		t.Fatalf("expected effective ratio 0, got %v", feats.EffectivePixelRatio)
	}
	if !almostEqual(feats.DominantFillRatio, 0.5) {
		t.Fatalf("expected dominant ratio 0.5, got %v", feats.DominantFillRatio)
	}
	if !almostEqual(feats.LargestFillComponentRatio, 0.5) {
		t.Fatalf("expected component ratio 0.5, got %v", feats.LargestFillComponentRatio)
	}
}

func TestExtractSplitComponents(t *testing.T) {
	// Row of red red blue red blue: the dominant red covers 3/5 of the image
	// but its largest 4-connected run is only the first two pixels.
	buf := NewPixelBuffer(5, 1)
	colors := []RGB{
		{255, 0, 0}, {255, 0, 0}, {0, 0, 255}, {255, 0, 0}, {0, 0, 255},
	}
	for p, c := range colors {
		i := p * 4
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = c.R, c.G, c.B, 255
	}

	feats, err := Extract(buf)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !almostEqual(feats.EffectivePixelRatio, 1.0) {
		t.Fatalf("expected effective ratio 1.0, got %v", feats.EffectivePixelRatio)
	}
	if !almostEqual(feats.DominantFillRatio, 0.6) {
		t.Fatalf("expected dominant ratio 0.6, got %v", feats.DominantFillRatio)
	}
	if !almostEqual(feats.LargestFillComponentRatio, 0.4) {
		t.Fatalf("expected component ratio 0.4, got %v", feats.LargestFillComponentRatio)
	}
}

func TestExtractIgnoresTransparentPixels(t *testing.T) {
	buf := NewPixelBuffer(2, 1)
	buf.Set(0, 0, 128, 128, 128, 255)
	buf.Set(1, 0, 128, 128, 128, 0)

	feats, err := Extract(buf)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !almostEqual(feats.EffectivePixelRatio, 0.5) {
		t.Fatalf("expected effective ratio 0.5, got %v", feats.EffectivePixelRatio)
	}
	if !almostEqual(feats.DominantFillRatio, 0.5) {
		t.Fatalf("expected dominant ratio 0.5, got %v", feats.DominantFillRatio)
	}
}

func TestExtractRejectsInvalidBuffer(t *testing.T) {
	bad := &PixelBuffer{W: 4, H: 4, Pix: make([]uint8, 7)}
	if _, err := Extract(bad); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
	if _, err := Extract(&PixelBuffer{}); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage for zero size, got %v", err)
	}
}

func TestExtractDoesNotMutateInput(t *testing.T) {
	buf := uniformBuffer(6, 6, 40, 90, 200, 255)
	before := buf.Clone()

	if _, err := Extract(buf); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for i := range buf.Pix {
		if buf.Pix[i] != before.Pix[i] {
			t.Fatalf("input buffer mutated at byte %d", i)
		}
	}
}
