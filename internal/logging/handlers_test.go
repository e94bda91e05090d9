package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if h := newFanoutHandler(nil, nil); h != slog.DiscardHandler {
		t.Fatal("expected DiscardHandler for all nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner, nil); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(TeeHandler(infoHandler, debugHandler).WithAttrs([]slog.Attr{slog.String("key", "value")}))
	logger.Debug("debug only message")

	if infoBuf.Len() != 0 {
		t.Fatal("info handler should not receive debug messages")
	}
	if !bytes.Contains(debugBuf.Bytes(), []byte(`"key"`)) {
		t.Fatalf("expected attrs in debug output, got %s", debugBuf.String())
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestFanoutHandlerJoinsErrors(t *testing.T) {
	var buf bytes.Buffer
	h := newFanoutHandler(failingHandler{}, slog.NewJSONHandler(&buf, nil))
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "msg", 0))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected healthy handler to still receive the record")
	}
}

func TestPrettyHandlerFormatsSubject(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newPrettyHandler(&buf, lvl, false, false))
	logger = logger.With(String(FieldComponent, "workflow"), String(FieldItemID, "kw-7"))
	logger.Info("stage completed", String(FieldStage, "publish"), Int("score", 82), String("note", "two words"))

	line := buf.String()
	for _, fragment := range []string{" INFO [workflow] kw-7/publish: stage completed", "score=82", `note="two words"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Fatalf("expected no colour codes, got %q", line)
	}
}

func TestPrettyHandlerColour(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newPrettyHandler(&buf, new(slog.LevelVar), false, true))
	logger.Warn("careful")
	if !strings.Contains(buf.String(), ansiYellow+"WARN"+ansiReset) {
		t.Fatalf("expected coloured level, got %q", buf.String())
	}
}

func TestLevelOverrideReplacesPrevious(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelDebug)
	base := slog.New(newPrettyHandler(&buf, lvl, false, false))

	root := WithLevelOverride(base, slog.LevelInfo)
	root.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug suppressed at root, got %q", buf.String())
	}

	stage := StageLogger(root, map[string]string{"publish": "debug"}, "publish")
	stage.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected stage override to allow debug, got %q", buf.String())
	}
}

func TestRecordHandlerFlattensTimeAndError(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newRecordHandler(&buf, lvl, false))
	logger.Warn("publish skipped", Error(errors.New("cms down")))

	line := buf.String()
	for _, fragment := range []string{`"level":"warn"`, `"error":"cms down"`, `"ts":"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %s in %s", fragment, line)
		}
	}
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	ts, _ := record["ts"].(string)
	if _, err := time.Parse(recordTimeFormat, ts); err != nil || !strings.HasSuffix(ts, "Z") {
		t.Fatalf("expected UTC millisecond timestamp, got %q (%v)", ts, err)
	}
}

func TestErrorWithContextKeepsCallerHint(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ErrorWithContext(logger, "publish failed", "publish_failed", String(FieldErrorHint, "check the CMS token"))

	line := buf.String()
	if strings.Count(line, FieldErrorHint) != 1 || !strings.Contains(line, "check the CMS token") {
		t.Fatalf("expected caller hint only, got %s", line)
	}
	if strings.Contains(line, FieldImpact) {
		t.Fatalf("error records carry no impact default, got %s", line)
	}
	if !strings.Contains(line, `"event_type":"publish_failed"`) {
		t.Fatalf("expected event type, got %s", line)
	}
}
