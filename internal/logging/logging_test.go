package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v want %v", in, got, want)
		}
	}
}

func TestStartSpanReusesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug")

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-1")

	spanCtx, span := StartSpan(ctx, "social.SendRequest", "recipientId", "u2")
	if TraceIDFromContext(spanCtx) != "req-1" {
		t.Fatalf("expected trace id to reuse request id got %q", TraceIDFromContext(spanCtx))
	}
	if SpanIDFromContext(spanCtx) == "" {
		t.Fatal("expected span id on context")
	}

	span.End(errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["msg"] != "span failed" || entry["recipientId"] != "u2" || entry["trace_id"] != "req-1" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestNestedSpanRecordsParent(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))

	outerCtx, outer := StartSpan(ctx, "outer")
	_, inner := StartSpan(outerCtx, "inner")
	inner.End(nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["msg"] != "span completed" || entry["parent_span_id"] != SpanIDFromContext(outerCtx) {
		t.Fatalf("unexpected log entry: %v", entry)
	}
	if entry["trace_id"] != TraceIDFromContext(outerCtx) {
		t.Fatalf("expected nested span to share the trace id, got %v", entry)
	}
	outer.End(nil)
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "info"))
	ctx = With(ctx, "user_id", "u1")

	FromContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["user_id"] != "u1" {
		t.Fatalf("expected user_id attribute got %v", entry)
	}
}
