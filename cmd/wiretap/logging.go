package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// parseLogLevel reads LOG_LEVEL (spec.md §6's External Interfaces table),
// defaulting to info for an empty or unrecognized value.
func parseLogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// colorEnabled reports whether log level values should be colorized,
// controlled by LOG_DISABLE_COLOR.
func colorEnabled() bool {
	return os.Getenv("LOG_DISABLE_COLOR") != "1"
}

var (
	levelStyleDebug = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	levelStyleInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	levelStyleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	levelStyleError = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

func styleForLevel(lvl slog.Level) lipgloss.Style {
	switch {
	case lvl < slog.LevelInfo:
		return levelStyleDebug
	case lvl < slog.LevelWarn:
		return levelStyleInfo
	case lvl < slog.LevelError:
		return levelStyleWarn
	default:
		return levelStyleError
	}
}

// newLogHandlerOptions builds the slog.HandlerOptions for the proxy's
// stderr logger, applying color to the level attribute when enabled
// (LOG_DISABLE_COLOR, spec.md §6).
func newLogHandlerOptions(level slog.Level, color bool) *slog.HandlerOptions {
	opts := &slog.HandlerOptions{Level: level}
	if !color {
		return opts
	}
	opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
		if a.Key != slog.LevelKey {
			return a
		}
		lvl, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}
		a.Value = slog.StringValue(styleForLevel(lvl).Render(lvl.String()))
		return a
	}
	return opts
}
