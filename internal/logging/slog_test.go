package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/samber/oops"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	l := slog.New(h)
	return NewSlogLogger(l), &buf
}

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		key   string
		val   string
	}{
		{"DEBUG", "dbg", "a", "1"},
		{"INFO", "inf", "b", "2"},
		{"WARN", "wrn", "c", "3"},
		{"ERROR", "err", "d", "4"},
	}

	for _, tc := range tests {
		if !strings.Contains(out, "level="+tc.level) {
			t.Fatalf("expected line with level=%s in output:\n%s", tc.level, out)
		}
		if !strings.Contains(out, "msg="+tc.msg) {
			t.Fatalf("expected line with msg=%q in output:\n%s", tc.msg, out)
		}
		if !strings.Contains(out, tc.key+"="+tc.val) {
			t.Fatalf("expected attribute %s=%s in output:\n%s", tc.key, tc.val, out)
		}
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log2 := log.With("req_id", "123", "user", "alice")
	log2.Info(ctx, "hello", "k", "v")

	out := buf.String()
	wantSubs := []string{
		"level=INFO",
		"msg=hello",
		"req_id=123",
		"user=alice",
		"k=v",
	}
	for _, s := range wantSubs {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
}

func TestSlogLogger_ContextDoesNotPanic(t *testing.T) {
	log, _ := newTestLogger(t)

	ctx := context.TODO()
	log.Info(ctx, "ctx-ok")
	log.Debug(ctx, "ctx-ok")
	log.Warn(ctx, "ctx-ok")
	log.Error(ctx, "ctx-ok")
}

func TestSlogLogger_AddsRequestIDFromContext(t *testing.T) {
	log, buf := newTestLogger(t)

	ctx := WithRequestID(context.Background(), "01HZX")
	log.Info(ctx, "with-id")
	log.Info(context.Background(), "without-id")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "request_id=01HZX") {
		t.Fatalf("expected request_id in first line: %s", lines[0])
	}
	if strings.Contains(lines[1], "request_id=") {
		t.Fatalf("unexpected request_id in second line: %s", lines[1])
	}
}

func TestRequestIDFrom_Empty(t *testing.T) {
	if got := RequestIDFrom(context.Background()); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}

func TestErrorAttrs(t *testing.T) {
	if ErrorAttrs(nil) != nil {
		t.Fatal("nil error must produce no attrs")
	}

	plain := ErrorAttrs(errors.New("boom"))
	if len(plain) != 2 || plain[0] != "error" || plain[1] != "boom" {
		t.Fatalf("unexpected plain attrs: %#v", plain)
	}

	coded := ErrorAttrs(oops.Code("REFRESH_TOKEN_CREATE_FAILED").With("user_id", "u1").Errorf("db down"))
	joined := fmt.Sprint(coded...)
	if !strings.Contains(joined, "REFRESH_TOKEN_CREATE_FAILED") {
		t.Fatalf("expected code in attrs: %#v", coded)
	}
	if !strings.Contains(joined, "u1") {
		t.Fatalf("expected context in attrs: %#v", coded)
	}
}

func TestNop_ImplementsLogger(t *testing.T) {
	var l Logger = Nop{}
	l.Info(context.Background(), "ignored")
	if l.With("k", "v") == nil {
		t.Fatal("With must return a logger")
	}
}

func TestNewRequestID_UniqueAndULID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("unexpected id lengths: %q %q", a, b)
	}
	if a == b {
		t.Fatalf("ids must differ, got %q twice", a)
	}
}
