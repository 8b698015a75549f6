package gtest

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/neilotoole/slogt"
)

// NewLogger returns a logger writing through t.Log.
//
// The minimum level defaults to debug and can be raised with
// GSTALL_TEST_LOG_LEVEL (e.g. "info"), since the sampler logs every failed sample.
func NewLogger(t testing.TB) *slog.Logger {
	t.Helper()

	level := slog.LevelDebug
	if s := os.Getenv("GSTALL_TEST_LOG_LEVEL"); s != "" {
		if err := level.UnmarshalText([]byte(s)); err != nil {
			t.Fatalf("invalid GSTALL_TEST_LOG_LEVEL %q: %v", s, err)
		}
	}

	return slogt.New(t, slogt.Factory(func(w io.Writer) slog.Handler {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}))
}
