package logging

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	logger := New("warn", "text")
	ctx := context.Background()
	if logger.Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("warn logger must not emit info records")
	}
	if !logger.Enabled(ctx, slog.LevelWarn) {
		t.Fatalf("warn logger must emit warn records")
	}
	// Unknown levels fall back to info.
	if !New("loud", "text").Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("unknown level must default to info")
	}
}

func TestTraditionalHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	handler := &TraditionalHandler{
		logger: log.New(&buf, "", 0),
		level:  slog.LevelInfo,
	}

	slog.New(handler).Info("pair started", "diff", "a.png")

	got := strings.TrimSpace(buf.String())
	if got != "[INFO] pair started [diff=a.png]" {
		t.Fatalf("unexpected log line %q", got)
	}
}
