package logging_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quill/internal/config"
	"quill/internal/logging"
	"quill/internal/services"
)

func TestNewFromConfigWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello file", logging.String("k", "v"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "quill.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"hello file"`) {
		t.Fatalf("expected JSON record in log file, got %q", content)
	}
}

func TestConsoleLoggerCallerOnlyForDebug(t *testing.T) {
	for _, tc := range []struct {
		level      string
		wantCaller bool
	}{
		{"info", false},
		{"debug", true},
	} {
		logPath := filepath.Join(t.TempDir(), "console.log")
		logger, err := logging.New(logging.Options{Format: "console", Level: tc.level, OutputPaths: []string{logPath}})
		if err != nil {
			t.Fatalf("New returned error: %v", err)
		}
		logger.Info("message")

		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		if got := strings.Contains(string(content), ".go:"); got != tc.wantCaller {
			t.Fatalf("level %s: caller present=%v, want %v (%q)", tc.level, got, tc.wantCaller, content)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithItemID(ctx, "kw-0123")
	ctx = services.WithStage(ctx, "gate")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WithContext(ctx, base).Info("contextual log")

	out := buf.String()
	for _, fragment := range []string{`"item_id":"kw-0123"`, `"stage":"gate"`, `"correlation_id":"req-xyz"`} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %s in %s", fragment, out)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	logging.WarnWithContext(logger, "image skipped", "illustrate_failed", logging.ErrorAttrs(services.Wrap(services.ErrTimeout, "illustrate", "render", "", errors.New("slow")))...)

	out := buf.String()
	for _, fragment := range []string{`"event_type":"illustrate_failed"`, `"error_kind":"timeout"`, `"impact"`} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %s in %s", fragment, out)
		}
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "run-old.log")
	fresh := filepath.Join(dir, "run-new.log")
	keep := filepath.Join(dir, "quill.log")
	for _, path := range []string{old, fresh, keep} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	now := time.Now()
	past := now.AddDate(0, 0, -40)
	for _, path := range []string{old, keep} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 30, now, logging.RetentionTarget{Dir: dir, Pattern: "*.log", Exclude: []string{keep}})
	if removed != 1 {
		t.Fatalf("expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected old log removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Fatal("expected excluded log kept")
	}
	if logging.CleanupOldLogs(nil, 0, now, logging.RetentionTarget{Dir: dir}) != 0 {
		t.Fatal("expected retention 0 to disable pruning")
	}
}
