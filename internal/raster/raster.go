// Package raster implements the pixel-level core: feature extraction,
// background removal, offset alignment, and compositing over plain RGBA
// buffers. Nothing in this package performs I/O.
package raster

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrInvalidImage reports a malformed or zero-size buffer.
	ErrInvalidImage = errors.New("invalid image buffer")
	// ErrInvalidColor reports a color component outside [0,255].
	ErrInvalidColor = errors.New("invalid color")
	// ErrOutOfRange reports an overlay too large for the base image.
	ErrOutOfRange = errors.New("overlay exceeds base search range")
)

// RGB is a plain 8-bit color triple used for background keys.
type RGB struct {
	R, G, B uint8
}

// PixelBuffer is a W x H RGBA raster stored row-major, four bytes per pixel
// with straight (non-premultiplied) alpha. Buffers are value-like: components
// hand them off rather than sharing them, and every operation that changes
// pixels returns a new buffer unless its name says otherwise.
type PixelBuffer struct {
	W, H int
	Pix  []uint8
}

// NewPixelBuffer allocates a zeroed buffer.
func NewPixelBuffer(w, h int) *PixelBuffer {
	return &PixelBuffer{W: w, H: h, Pix: make([]uint8, w*h*4)}
}

// Validate checks the structural invariant len(Pix) == W*H*4.
func (b *PixelBuffer) Validate() error {
	if b == nil || b.W < 1 || b.H < 1 {
		return fmt.Errorf("%w: zero-size buffer", ErrInvalidImage)
	}
	if len(b.Pix) != b.W*b.H*4 {
		return fmt.Errorf("%w: pixel data is %d bytes, want %d", ErrInvalidImage, len(b.Pix), b.W*b.H*4)
	}
	return nil
}

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	out := &PixelBuffer{W: b.W, H: b.H, Pix: make([]uint8, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// At returns the RGBA bytes of pixel (x, y). Callers are expected to stay in
// bounds; the hot loops in this package index Pix directly instead.
func (b *PixelBuffer) At(x, y int) (r, g, bl, a uint8) {
	i := (y*b.W + x) * 4
	return b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]
}

// Set writes the RGBA bytes of pixel (x, y).
func (b *PixelBuffer) Set(x, y int, r, g, bl, a uint8) {
	i := (y*b.W + x) * 4
	b.Pix[i] = r
	b.Pix[i+1] = g
	b.Pix[i+2] = bl
	b.Pix[i+3] = a
}

// Image wraps the buffer as an image.NRGBA sharing the same pixel data.
// The NRGBA layout (straight alpha, RGBA byte order) matches PixelBuffer
// exactly, so this is a view, not a copy.
func (b *PixelBuffer) Image() *image.NRGBA {
	return &image.NRGBA{Pix: b.Pix, Stride: b.W * 4, Rect: image.Rect(0, 0, b.W, b.H)}
}

// FromImage converts any image.Image into a PixelBuffer, copying pixels.
func FromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	buf := NewPixelBuffer(w, h)
	if src, ok := img.(*image.NRGBA); ok && src.Stride == w*4 {
		copy(buf.Pix, src.Pix)
		return buf
	}
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, a16 := img.At(x, y).RGBA()
			if a16 == 0 {
				buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2], buf.Pix[i+3] = 0, 0, 0, 0
			} else {
				// Undo the alpha premultiplication color.Color.RGBA applies.
				buf.Pix[i] = uint8((r16 * 0xffff / a16) >> 8)
				buf.Pix[i+1] = uint8((g16 * 0xffff / a16) >> 8)
				buf.Pix[i+2] = uint8((b16 * 0xffff / a16) >> 8)
				buf.Pix[i+3] = uint8(a16 >> 8)
			}
			i += 4
		}
	}
	return buf
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
