package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sfextract/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{name: "info level", cfg: &config.LoggingConfig{Level: "info"}},
		{name: "debug level", cfg: &config.LoggingConfig{Level: "debug"}},
		{name: "empty level defaults to info", cfg: &config.LoggingConfig{}},
		{name: "invalid level", cfg: &config.LoggingConfig{Level: "loud"}, wantErr: true},
		{
			name: "file output",
			cfg:  &config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "logs", "sfextract.log")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"verbose", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, err := parseLogLevel(tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "warn")
	require.NoError(t, err)

	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("shown")
	l.Error("also shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["message"])
	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "error", lines[1]["level"])
}

func TestFieldsAreChainedAndIsolated(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "debug")
	require.NoError(t, err)

	base := l.WithField("entity", "User")
	child := base.WithFields(map[string]interface{}{"chunk": 3, "done": false})
	child.WithError(errors.New("boom")).Info("with error")
	base.Info("base only")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "User", lines[0]["entity"])
	assert.Equal(t, float64(3), lines[0]["chunk"])
	assert.Equal(t, false, lines[0]["done"])
	assert.Equal(t, "boom", lines[0]["error"])

	assert.Equal(t, "User", lines[1]["entity"])
	_, hasChunk := lines[1]["chunk"]
	assert.False(t, hasChunk, "child fields must not leak into the parent")
}

func TestWithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "info")
	require.NoError(t, err)

	assert.Same(t, l, l.WithError(nil))
}

func TestDomainHelpers(t *testing.T) {
	tl := NewTestLogger()

	LogPage(tl, 2, 50, true)
	LogUpload(tl, "s3://bucket/prefix/User/x.jsonl", 50, 1024)
	LogRateLimit(tl, "fetch page", 5*time.Second)
	LogCheckpoint(tl, "./state.json", 2, 100)
	LogRequest(tl, "GET", "https://api.example.com/odata/v2/User", 503, time.Second)

	page, ok := tl.FindMessage("Page fetched")
	require.True(t, ok)
	assert.Equal(t, 50, page.Fields["records"])
	assert.Equal(t, true, page.Fields["has_next"])

	rl, ok := tl.FindMessage("Rate limit hit, waiting before retrying the same request")
	require.True(t, ok)
	assert.Equal(t, "WARN", rl.Level)
	assert.Equal(t, 5*time.Second, rl.Fields["retry_after"])

	cp, ok := tl.FindMessage("Checkpoint saved")
	require.True(t, ok)
	assert.Equal(t, "DEBUG", cp.Level)
	assert.Equal(t, 100, cp.Fields["total_records"])

	assert.True(t, tl.HasMessage("HTTP request server error"))
	assert.Len(t, tl.GetMessagesByLevel("INFO"), 2)
}

func TestTestLoggerSharesSink(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("a", 1).WithError(errors.New("bad")).Error("derived")
	tl.Info("root")

	msgs := tl.GetMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "bad", msgs[0].Error)
	assert.Equal(t, 1, msgs[0].Fields["a"])
	assert.Empty(t, msgs[1].Fields)

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	tl := NewTestLogger()
	assert.Same(t, tl, OrNop(tl))

	// The no-op logger accepts every call
	n := OrNop(nil)
	n.WithField("k", "v").WithError(errors.New("x")).InfoWithFields("msg", nil)
}

func TestGlobalLogger(t *testing.T) {
	require.NoError(t, Initialize(&config.LoggingConfig{Level: "error"}))
	assert.NotNil(t, GetLogger())
	assert.NotNil(t, GetLogger().GetZerolog())
}
