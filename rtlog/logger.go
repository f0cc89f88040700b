// Package rtlog provides structured logging for the runtime, wrapping
// log/slog with conveniences for turn/session lifecycle logging and
// automatic redaction of API keys that might otherwise leak into logs
// when a turn service implementation logs its outbound request.
package rtlog

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Default is the global structured logger instance, safe for concurrent use.
var Default *slog.Logger

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("MINI_AGENT_LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	Default = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// SetLevel replaces the global logger with one at the given level.
func SetLevel(level slog.Level) {
	Default = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Info logs at info level with structured key-value attributes.
func Info(msg string, args ...any) { Default.Info(msg, args...) }

// Debug logs at debug level with structured key-value attributes.
func Debug(msg string, args ...any) { Default.Debug(msg, args...) }

// Warn logs at warn level with structured key-value attributes.
func Warn(msg string, args ...any) { Default.Warn(msg, args...) }

// Error logs at error level with structured key-value attributes.
func Error(msg string, args ...any) { Default.Error(msg, args...) }

// InfoContext logs an info message honoring context cancellation for tracing.
func InfoContext(ctx context.Context, msg string, args ...any) { Default.InfoContext(ctx, msg, args...) }

// WithSession returns a logger pre-populated with the session name, the way
// every actor-scoped log line should be attributable to its conversation.
func WithSession(name string) *slog.Logger {
	return Default.With("session", name)
}

// TurnStarted logs the start of a turn with its sequence number.
func TurnStarted(session string, turnNumber int) {
	Info("turn started", "session", session, "turn", turnNumber)
}

// TurnCompleted logs a successful turn with its duration.
func TurnCompleted(session string, turnNumber int, durationMs int64) {
	Info("turn completed", "session", session, "turn", turnNumber, "duration_ms", durationMs)
}

// TurnFailed logs a failed turn and its cause, redacting any API key or
// bearer token a provider error message might otherwise have echoed back.
func TurnFailed(session string, turnNumber int, err error) {
	Error("turn failed", "session", session, "turn", turnNumber, "error", RedactSensitiveData(err.Error()))
}

// TurnInterrupted logs a cancelled turn and the reason for cancellation.
func TurnInterrupted(session string, turnNumber int, reason string) {
	Warn("turn interrupted", "session", session, "turn", turnNumber, "reason", reason)
}

var apiKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`),
}

// RedactSensitiveData replaces recognizable API key and bearer token
// substrings with a redacted form, preserving a short prefix for debugging.
// Turn service implementations that log outbound requests should pass
// their payload through this before logging it.
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}
