package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if got := FromContext(context.Background()); got != L {
		t.Fatalf("expected global logger for empty context")
	}
}

func TestWithContextRoundTrip(t *testing.T) {
	scoped := slog.Default().With(slog.String("request_id", "r1"))
	ctx := WithContext(context.Background(), scoped)
	if got := FromContext(ctx); got != scoped {
		t.Fatalf("expected scoped logger from context")
	}
}
