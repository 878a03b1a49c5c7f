package fetcher

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestBrowserSetupFailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	br := &BrowserRenderer{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	br.debugOnError("failed to set extra headers", "https://x.test", nil)
	if buf.Len() != 0 {
		t.Fatalf("nil error must not log, got %q", buf.String())
	}

	br.debugOnError("failed to set extra headers", "https://x.test", errors.New("target closed"))
	out := buf.String()
	if !strings.Contains(out, "failed to set extra headers") || !strings.Contains(out, "target closed") {
		t.Errorf("unexpected log output %q", out)
	}
}
