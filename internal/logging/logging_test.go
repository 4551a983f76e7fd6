package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONHandlerCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)
	slog.SetDefault(slog.New(NewHandler(&buf, "debug", "json")))

	Info("lookup_failed", map[string]any{"id": "2", "pass": "primary"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "lookup_failed", line["msg"])
	require.Equal(t, "2", line["id"])
	require.Equal(t, "primary", line["pass"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	defer slog.SetDefault(prev)
	slog.SetDefault(slog.New(NewHandler(&buf, "warn", "json")))

	Info("quiet", nil)
	require.Zero(t, buf.Len())
	Error("loud", nil)
	require.NotZero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}
