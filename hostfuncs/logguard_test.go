package hostfuncs

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostguard-dev/hostguard/internal/testutil"
	"github.com/hostguard-dev/hostguard/sandbox"
)

func logFixture(t *testing.T, perMinute int, clock func() time.Time) (*LogGuard, *bytes.Buffer) {
	t.Helper()

	manifest := testutil.Manifest()
	manifest.Resources.MaxLogMessagesPerMinute = &perMinute

	opts := []sandbox.Option{}
	if clock != nil {
		opts = append(opts, sandbox.WithCounterClock(clock))
	}
	sb, err := sandbox.New(manifest, opts...)
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewLogGuard(sb, WithLogOutput(logger)), &buf
}

func TestLogGuard_ForwardsWithPluginIdentity(t *testing.T) {
	g, buf := logFixture(t, 100, nil)

	g.Log(context.Background(), LogRequest{Severity: 1, Message: "starting up"})

	out := buf.String()
	assert.Contains(t, out, "starting up")
	assert.Contains(t, out, "test-plugin")
	assert.Contains(t, out, "INFO")
}

func TestLogGuard_SeverityMapping(t *testing.T) {
	tests := []struct {
		severity int
		level    string
	}{
		{-5, "DEBUG"},
		{0, "DEBUG"},
		{1, "INFO"},
		{2, "WARN"},
		{3, "ERROR"},
		{99, "ERROR"},
	}

	for _, tc := range tests {
		g, buf := logFixture(t, 100, nil)
		g.Log(context.Background(), LogRequest{Severity: tc.severity, Message: "m"})
		assert.Contains(t, buf.String(), tc.level, "severity %d", tc.severity)
	}
}

func TestLogGuard_TruncatesLongLines(t *testing.T) {
	g, buf := logFixture(t, 100, nil)

	g.Log(context.Background(), LogRequest{Severity: 1, Message: strings.Repeat("x", MaxLogMessageSize*2)})

	out := buf.String()
	assert.Contains(t, out, truncationMarker)
	assert.Less(t, len(out), MaxLogMessageSize+1024)
}

func TestLogGuard_TruncationKeepsRuneBoundary(t *testing.T) {
	g, buf := logFixture(t, 100, nil)

	// Three-byte runes guarantee the cap lands mid-rune.
	g.Log(context.Background(), LogRequest{Severity: 1, Message: strings.Repeat("日", MaxLogMessageSize)})

	out := buf.String()
	assert.Contains(t, out, truncationMarker)
	assert.True(t, utf8.ValidString(out), "truncation must not split a rune")
	// A split rune would force the handler to hex-escape the tail.
	assert.NotContains(t, out, `\x`)
}

func TestLogGuard_DropsSilentlyPastLimit(t *testing.T) {
	g, buf := logFixture(t, 2, nil)

	for i := 0; i < 5; i++ {
		g.Log(context.Background(), LogRequest{Severity: 1, Message: "line"})
	}

	assert.Equal(t, 2, strings.Count(buf.String(), "line"), "only the first two lines pass")
}

func TestLogGuard_AggregatedDropNoticeOnNewWindow(t *testing.T) {
	now := time.Now()
	g, buf := logFixture(t, 1, func() time.Time { return now })

	g.Log(context.Background(), LogRequest{Severity: 1, Message: "first"})
	g.Log(context.Background(), LogRequest{Severity: 1, Message: "dropped-1"})
	g.Log(context.Background(), LogRequest{Severity: 1, Message: "dropped-2"})

	assert.NotContains(t, buf.String(), "dropped-1")
	assert.NotContains(t, buf.String(), "dropped by rate limit")

	now = now.Add(time.Minute)
	g.Log(context.Background(), LogRequest{Severity: 1, Message: "second"})

	out := buf.String()
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "dropped by rate limit")
	assert.Contains(t, out, "dropped=2")
}
