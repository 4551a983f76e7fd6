package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Init installs the default logger. format is "json" or "text" (colored, via tint).
func Init(level, format string) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, level, format)))
}

func NewHandler(w io.Writer, level, format string) slog.Handler {
	lvl := ParseLevel(level)
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return tint.NewHandler(w, &tint.Options{Level: lvl, TimeFormat: time.Kitchen})
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Log emits msg with fields as sorted attributes on the default logger.
func Log(level slog.Level, msg string, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	slog.LogAttrs(context.Background(), level, msg, attrs...)
}

func Debug(msg string, fields map[string]any) { Log(slog.LevelDebug, msg, fields) }
func Info(msg string, fields map[string]any)  { Log(slog.LevelInfo, msg, fields) }
func Warn(msg string, fields map[string]any)  { Log(slog.LevelWarn, msg, fields) }
func Error(msg string, fields map[string]any) { Log(slog.LevelError, msg, fields) }
