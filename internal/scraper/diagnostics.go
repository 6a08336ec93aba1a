package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maltedev/market-scout/internal/browser"
)

// DiagnosticSink receives the page whenever a run hits trouble. Capture must
// never fail the run.
type DiagnosticSink interface {
	Capture(ctx context.Context, page browser.Page, source, stage string)
}

type NoopSink struct{}

func (NoopSink) Capture(context.Context, browser.Page, string, string) {}

// ScreenshotSink writes <dir>/<source>_<stage>_<timestamp>.png.
type ScreenshotSink struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

func NewScreenshotSink(dir string, logger *slog.Logger) *ScreenshotSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScreenshotSink{
		dir:    dir,
		logger: logger.With("component", "diagnostics"),
		now:    time.Now,
	}
}

func (s *ScreenshotSink) Capture(ctx context.Context, page browser.Page, source, stage string) {
	if page == nil {
		return
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.logger.Warn("failed to create debug directory", "dir", s.dir, "error", err)
		return
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s_%s.png",
		safeName(source), safeName(stage), s.now().Format("20060102_150405")))

	if err := page.Screenshot(ctx, path); err != nil {
		s.logger.Warn("failed to capture screenshot", "source", source, "stage", stage, "error", err)
		return
	}
	s.logger.Info("saved diagnostic screenshot", "source", source, "stage", stage, "path", path)
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(s))
}
