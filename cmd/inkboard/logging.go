package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"inkboard/internal/config"
)

const (
	logLevelEnvKey  = "INKBOARD_LOG_LEVEL"
	logFormatEnvKey = "INKBOARD_LOG_FORMAT"

	logFormatText = "text"
	logFormatJSON = "json"
)

// logSettings is the resolved stderr logger configuration.
type logSettings struct {
	Level  slog.Level
	Format string
}

// levelCandidate is one place a log level may come from, in precedence order.
type levelCandidate struct {
	raw   string
	label string
	fatal bool
}

// resolveLogSettings picks the first non-empty level among flag, env, and config.
// An invalid flag is an error. An invalid env or config value falls back to the
// default level with a warning.
func resolveLogSettings(flagLevel, envLevel, configLevel, envFormat string) (logSettings, []string, error) {
	settings := logSettings{Level: slog.LevelInfo, Format: logFormatText}
	var warnings []string

	candidates := []levelCandidate{
		{raw: flagLevel, label: "--log-level", fatal: true},
		{raw: envLevel, label: logLevelEnvKey},
		{raw: configLevel, label: "log_level"},
	}
	for _, c := range candidates {
		if strings.TrimSpace(c.raw) == "" {
			continue
		}
		level, err := parseLogLevel(c.raw)
		if err != nil {
			if c.fatal {
				return logSettings{}, nil, fmt.Errorf("invalid %s %q", c.label, c.raw)
			}
			warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", c.label, c.raw, config.DefaultLogLevel))
			break
		}
		settings.Level = level
		break
	}

	switch format := strings.ToLower(strings.TrimSpace(envFormat)); format {
	case "", logFormatText:
	case logFormatJSON:
		settings.Format = logFormatJSON
	default:
		warnings = append(warnings, fmt.Sprintf("warning: invalid %s=%q; using text", logFormatEnvKey, envFormat))
	}

	return settings, warnings, nil
}

// configureLoggerForCLI installs the default slog logger on stderr and returns
// warnings for the caller to print.
func configureLoggerForCLI(flagLevel, configLevel string) ([]string, error) {
	settings, warnings, err := resolveLogSettings(flagLevel, os.Getenv(logLevelEnvKey), configLevel, os.Getenv(logFormatEnvKey))
	if err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(os.Stderr, settings))
	return warnings, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		value = config.DefaultLogLevel
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(w io.Writer, settings logSettings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: settings.Level}
	if settings.Format == logFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
