package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLoggerLevels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=dbg", "a=1",
		"level=INFO", "msg=inf", "b=2",
		"level=WARN", "msg=wrn", "c=3",
		"level=ERROR", "msg=err", "d=4",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLoggerWith(t *testing.T) {
	log, buf := newTestLogger(t)

	log.With("request_id", "123").Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	assert.Contains(t, out, "request_id=123")
	assert.Contains(t, out, "k=v")
}

func TestNewProductionWritesJSON(t *testing.T) {
	for _, env := range []string{"production", "Production", "PRODUCTION"} {
		t.Run(env, func(t *testing.T) {
			var buf bytes.Buffer
			log, err := New(&buf, "warn", env)
			require.NoError(t, err)

			log.Info(context.Background(), "dropped")
			log.Warn(context.Background(), "kept", "principal_id", 7)

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, "kept", line["msg"])
			assert.Equal(t, float64(7), line["principal_id"])
		})
	}
}

func TestNewDevelopmentWritesText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "info", "development")
	require.NoError(t, err)

	log.Info(context.Background(), "hello", "principal_id", 7)
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "principal_id=7")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNopLogger(t *testing.T) {
	var log Logger = NopLogger{}
	log.With("k", "v").Info(context.Background(), "nothing")
}
