package raster

// Compose alpha-blends the overlay onto the base at offset (dx, dy) and
// returns a new buffer sized to the base. Straight (non-premultiplied) alpha
// with the standard "over" formula per channel:
//
//	out = src*srcA + dst*(1-srcA)
//
// Base pixels with no overlapping overlay content are copied through. Neither
// input is mutated.
func Compose(base, overlay *PixelBuffer, dx, dy int) (*PixelBuffer, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if err := overlay.Validate(); err != nil {
		return nil, err
	}

	out := base.Clone()

	// Clip the overlay to the base.
	x0 := maxInt(0, dx)
	y0 := maxInt(0, dy)
	x1 := minInt(base.W, dx+overlay.W)
	y1 := minInt(base.H, dy+overlay.H)
	if x1 <= x0 || y1 <= y0 {
		return out, nil
	}

	for y := y0; y < y1; y++ {
		si := ((y-dy)*overlay.W + (x0 - dx)) * 4
		di := (y*base.W + x0) * 4
		for x := x0; x < x1; x++ {
			a := int(overlay.Pix[si+3])
			switch a {
			case 0:
				// Transparent overlay pixel, base shows through.
			case 255:
				out.Pix[di] = overlay.Pix[si]
				out.Pix[di+1] = overlay.Pix[si+1]
				out.Pix[di+2] = overlay.Pix[si+2]
				out.Pix[di+3] = 255
			default:
				inv := 255 - a
				out.Pix[di] = uint8((int(overlay.Pix[si])*a + int(out.Pix[di])*inv + 127) / 255)
				out.Pix[di+1] = uint8((int(overlay.Pix[si+1])*a + int(out.Pix[di+1])*inv + 127) / 255)
				out.Pix[di+2] = uint8((int(overlay.Pix[si+2])*a + int(out.Pix[di+2])*inv + 127) / 255)
				// Alpha accumulates with the same over rule.
				out.Pix[di+3] = uint8(a + (int(out.Pix[di+3])*inv+127)/255)
			}
			si += 4
			di += 4
		}
	}
	return out, nil
}
