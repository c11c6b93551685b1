// Package imageio decodes raster files into PixelBuffers and writes results
// back out. The pixel-processing core never touches the filesystem; this
// package is the boundary.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"cgmatch/internal/raster"
)

var (
	ErrUnreadableFile    = errors.New("unreadable file")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrWrite             = errors.New("write failed")
)

// decoders maps extensions to decode funcs. JPEG and PNG come from the
// standard library, the rest from golang.org/x/image.
var decoders = map[string]func(f *os.File) (image.Image, error){
	".png":  func(f *os.File) (image.Image, error) { return png.Decode(f) },
	".jpg":  func(f *os.File) (image.Image, error) { return jpeg.Decode(f) },
	".jpeg": func(f *os.File) (image.Image, error) { return jpeg.Decode(f) },
	".bmp":  func(f *os.File) (image.Image, error) { return bmp.Decode(f) },
	".tif":  func(f *os.File) (image.Image, error) { return tiff.Decode(f) },
	".tiff": func(f *os.File) (image.Image, error) { return tiff.Decode(f) },
	".webp": func(f *os.File) (image.Image, error) { return webp.Decode(f) },
}

// IsImageFile reports whether path has a supported raster extension.
func IsImageFile(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Load decodes path into a fresh PixelBuffer owned by the caller.
func Load(path string) (*raster.PixelBuffer, error) {
	decode, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableFile, path, err)
	}
	defer f.Close()
	img, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableFile, path, err)
	}
	buf := raster.FromImage(img)
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	return buf, nil
}

// Save writes buf as PNG, creating parent directories as needed.
func Save(buf *raster.PixelBuffer, path string) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	defer f.Close()
	if err := png.Encode(f, buf.Image()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	return nil
}

// ListImages returns image files under root in sorted order. Without
// recursive, only direct children are considered.
func ListImages(root string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
