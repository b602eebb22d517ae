package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relayloop/capi-dispatch/internal/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), "level %q", tt.input)
	}
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New(slog.LevelInfo, "json").Logger)
	assert.NotNil(t, New(slog.LevelDebug, "text").Logger)
}

func TestWithContext(t *testing.T) {
	l := New(slog.LevelInfo, "json")

	t.Run("without request id", func(t *testing.T) {
		assert.Equal(t, l.Logger, l.WithContext(context.Background()))
	})

	t.Run("with request id", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
		assert.NotEqual(t, l.Logger, l.WithContext(ctx))
	})
}
