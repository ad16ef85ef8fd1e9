package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("dropped")
	log.Debug("dropped too")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.Warn("kept", "key", "value")
	out := buf.String()
	if !strings.Contains(out, "kept") || !strings.Contains(out, `"key":"value"`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestForFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		format string
		want   string
	}{
		{format: "json", want: `"msg":"hello"`},
		{format: "text", want: "msg=hello"},
		{format: "pretty", want: colorBlue + "INFO "},
		{format: "bogus", want: colorBlue + "INFO "},
	}
	for _, tc := range cases {
		t.Run(tc.format, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			ForFormat(&buf, tc.format, "info").Info("hello")
			if !strings.Contains(buf.String(), tc.want) {
				t.Fatalf("format %q: expected %q in %q", tc.format, tc.want, buf.String())
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := ForFormat(&buf, "pretty", "info")
	if log.Enabled(slog.LevelDebug) {
		t.Fatal("debug should be disabled at info level")
	}
	if !ForFormat(&buf, "json", "debug").Enabled(slog.LevelDebug) {
		t.Fatal("debug should be enabled at debug level")
	}
	if Discard().Enabled(slog.LevelError) {
		t.Fatal("discard logger should not be enabled")
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))

	FromContext(ctx).With("component", "tokenizer").Info("roundtrip")
	out := buf.String()
	if !strings.Contains(out, "roundtrip") || !strings.Contains(out, `"component":"tokenizer"`) {
		t.Fatalf("expected message via context logger, got: %s", out)
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.input); got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestPrettyHandlerGroupsAndAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)

	log := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "tokwrap")}).WithGroup("a").WithGroup("b"))
	log.Info("nested", "key", "val", "text", "hello world")

	out := buf.String()
	for _, want := range []string{"service=tokwrap", "a.b.key=val", `a.b.text="hello world"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
	if h.WithGroup("") != h {
		t.Fatal("WithGroup with empty name should return the same handler")
	}
}
