package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cgmatch/internal/config"
	"cgmatch/internal/imageio"
	"cgmatch/internal/match"
	"cgmatch/internal/raster"
	"cgmatch/internal/report"
)

func testConfig() *config.Config {
	return &config.Config{
		Background: config.Background{Color: "white", Mode: "match", Tolerance: 10, Detector: "histogram"},
		Alignment:  config.Alignment{Mode: "precise", InitStep: 1, MinStep: 1, ExtScale: 1, ChannelThreshold: 30},
	}
}

func fillRect(buf *raster.PixelBuffer, x0, y0, w, h int, r, g, b uint8) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			buf.Set(x, y, r, g, b, 255)
		}
	}
}

func whiteBuffer(w, h int) *raster.PixelBuffer {
	buf := raster.NewPixelBuffer(w, h)
	fillRect(buf, 0, 0, w, h, 255, 255, 255)
	return buf
}

// writePair saves a base with a red sprite at (5,4) and a smaller diff holding
// the same sprite at (2,3) on a white backdrop. The expected offset is (3,1).
func writePair(t *testing.T, dir string) (basePath, diffPath string) {
	t.Helper()

	base := whiteBuffer(30, 30)
	fillRect(base, 5, 4, 8, 6, 200, 30, 40)
	basePath = filepath.Join(dir, "scene.png")
	if err := imageio.Save(base, basePath); err != nil {
		t.Fatalf("save base: %v", err)
	}

	diff := whiteBuffer(20, 20)
	fillRect(diff, 2, 3, 8, 6, 200, 30, 40)
	diffPath = filepath.Join(dir, "scene diff1.png")
	if err := imageio.Save(diff, diffPath); err != nil {
		t.Fatalf("save diff: %v", err)
	}
	return basePath, diffPath
}

func TestProcessPairEndToEnd(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	basePath, diffPath := writePair(t, inDir)

	r := NewPairRunner(testLog, testConfig(), outDir)
	item := r.Process(context.Background(), match.PairJob{
		BasePath:      basePath,
		DiffPath:      diffPath,
		OutputRelPath: "scene diff1.png",
		Status:        match.StatusMatched,
	})

	if item.Status != report.StatusSuccess {
		t.Fatalf("expected success, got %s %s (%s)", item.Status, item.Reason, item.Detail)
	}
	if item.DX != 3 || item.DY != 1 {
		t.Fatalf("expected offset (3,1), got (%d,%d)", item.DX, item.DY)
	}
	if item.FitPercent != 100 {
		t.Fatalf("expected 100%% fit, got %v", item.FitPercent)
	}

	out, err := imageio.Load(item.OutputPath)
	if err != nil {
		t.Fatalf("output not readable: %v", err)
	}
	if out.W != 30 || out.H != 30 {
		t.Fatalf("output sized %dx%d, want base size", out.W, out.H)
	}
	// Composited sprite sits where the base sprite was; the surrounding base
	// pixels survive untouched.
	if rr, _, _, _ := out.At(6, 5); rr != 200 {
		t.Fatalf("expected sprite pixel at (6,5), got r=%d", rr)
	}
	if rr, _, _, _ := out.At(0, 0); rr != 255 {
		t.Fatalf("expected white base pixel at (0,0), got r=%d", rr)
	}
}

func TestProcessAutoBackgroundDetection(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	basePath, diffPath := writePair(t, inDir)

	cfg := testConfig()
	cfg.Background.Color = "auto"
	r := NewPairRunner(testLog, cfg, outDir)

	item := r.Process(context.Background(), match.PairJob{
		BasePath:      basePath,
		DiffPath:      diffPath,
		OutputRelPath: "scene diff1.png",
		Status:        match.StatusMatched,
	})
	if item.Status != report.StatusSuccess {
		t.Fatalf("expected success, got %s %s (%s)", item.Status, item.Reason, item.Detail)
	}
	if item.DX != 3 || item.DY != 1 {
		t.Fatalf("expected offset (3,1), got (%d,%d)", item.DX, item.DY)
	}
}

func TestProcessEnforcesMinimumFit(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	base := whiteBuffer(30, 30)
	fillRect(base, 5, 4, 8, 6, 200, 30, 40)
	basePath := filepath.Join(inDir, "scene.png")
	if err := imageio.Save(base, basePath); err != nil {
		t.Fatalf("save base: %v", err)
	}

	// The stray pixel has no counterpart in the base, so the best fit stays
	// just under 100%.
	diff := whiteBuffer(20, 20)
	fillRect(diff, 2, 3, 8, 6, 200, 30, 40)
	diff.Set(15, 15, 200, 30, 40, 255)
	diffPath := filepath.Join(inDir, "scene diff1.png")
	if err := imageio.Save(diff, diffPath); err != nil {
		t.Fatalf("save diff: %v", err)
	}

	cfg := testConfig()
	cfg.Alignment.MinFitPercent = 100
	r := NewPairRunner(testLog, cfg, outDir)

	item := r.Process(context.Background(), match.PairJob{
		BasePath:      basePath,
		DiffPath:      diffPath,
		OutputRelPath: "scene diff1.png",
		Status:        match.StatusMatched,
	})
	if item.Status != report.StatusFailed || item.Reason != report.ReasonAlignFail {
		t.Fatalf("expected align_fail below minimum fit, got %s %s (%s)", item.Status, item.Reason, item.Detail)
	}
	if item.FitPercent >= 100 {
		t.Fatalf("expected fit below 100%%, got %v", item.FitPercent)
	}
}

func TestProcessSkipsUnpairedJobs(t *testing.T) {
	r := NewPairRunner(testLog, testConfig(), t.TempDir())

	ambiguous := r.Process(context.Background(), match.PairJob{
		DiffPath: "d.png",
		Status:   match.StatusAmbiguous,
		Reason:   "2 background candidates in group",
	})
	if ambiguous.Status != report.StatusSkipped || ambiguous.Reason != report.ReasonAmbiguous {
		t.Fatalf("unexpected ambiguous mapping: %+v", ambiguous)
	}
	if !strings.Contains(ambiguous.Detail, "background candidates") {
		t.Fatalf("pairing reason lost: %q", ambiguous.Detail)
	}

	unmatched := r.Process(context.Background(), match.PairJob{
		DiffPath: "d.png",
		Status:   match.StatusUnmatched,
		Reason:   "no background candidate in group",
	})
	if unmatched.Status != report.StatusSkipped || unmatched.Reason != report.ReasonNoMatch {
		t.Fatalf("unexpected unmatched mapping: %+v", unmatched)
	}
}

func TestProcessReportsReadFailure(t *testing.T) {
	r := NewPairRunner(testLog, testConfig(), t.TempDir())

	item := r.Process(context.Background(), match.PairJob{
		BasePath: "/nowhere/base.png",
		DiffPath: "/nowhere/diff.png",
		Status:   match.StatusMatched,
	})
	if item.Status != report.StatusFailed || item.Reason != report.ReasonReadFail {
		t.Fatalf("expected read_fail, got %s %s", item.Status, item.Reason)
	}
}

func TestProcessReportsOversizedDiff(t *testing.T) {
	dir := t.TempDir()
	small := filepath.Join(dir, "base.png")
	big := filepath.Join(dir, "big diff1.png")
	if err := imageio.Save(whiteBuffer(10, 10), small); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := imageio.Save(whiteBuffer(20, 20), big); err != nil {
		t.Fatalf("save: %v", err)
	}

	r := NewPairRunner(testLog, testConfig(), t.TempDir())
	item := r.Process(context.Background(), match.PairJob{
		BasePath:      small,
		DiffPath:      big,
		OutputRelPath: "big diff1.png",
		Status:        match.StatusMatched,
	})
	if item.Status != report.StatusFailed || item.Reason != report.ReasonSizeInvalid {
		t.Fatalf("expected size_invalid, got %s %s (%s)", item.Status, item.Reason, item.Detail)
	}
	if _, err := os.Stat(item.OutputPath); err == nil {
		t.Fatalf("failed pair must not produce output")
	}
}

func TestParseColor(t *testing.T) {
	got, err := ParseColor("#336699")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != (raster.RGB{R: 0x33, G: 0x66, B: 0x99}) {
		t.Fatalf("unexpected color %+v", got)
	}

	// A missing # prefix is tolerated.
	got, err = ParseColor("a1b2c3")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != (raster.RGB{R: 0xa1, G: 0xb2, B: 0xc3}) {
		t.Fatalf("unexpected color %+v", got)
	}

	if _, err := ParseColor("not-a-color"); !errors.Is(err, raster.ErrInvalidColor) {
		t.Fatalf("expected ErrInvalidColor, got %v", err)
	}
}

func TestPngName(t *testing.T) {
	cases := map[string]string{
		"a/b.bmp":         "a/b.png",
		"scene diff1.png": "scene diff1.png",
		"noext":           "noext.png",
	}
	for in, want := range cases {
		if got := pngName(in); got != want {
			t.Fatalf("pngName(%q) = %q, want %q", in, got, want)
		}
	}
}
