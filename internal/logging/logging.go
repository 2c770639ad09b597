// Package logging configures the process-wide slog logger and provides the
// phone-masking helper used anywhere a lead number could reach a log line.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON slog logger honoring LOG_LEVEL semantics.
func New(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lv}))
}

// MaskPhone keeps the country code and last two digits of an E.164 number.
// "+919876543210" becomes "+91********10".
func MaskPhone(phone string) string {
	p := strings.TrimSpace(phone)
	if len(p) < 6 {
		return "***"
	}
	keepHead := 3
	if !strings.HasPrefix(p, "+") {
		keepHead = 2
	}
	keepTail := 2
	masked := []byte(p)
	for i := keepHead; i < len(p)-keepTail; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
