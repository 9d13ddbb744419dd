package internal

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

var Logger *slog.Logger

// VerboseMode is set when debug logging is on. Interactive output such as
// spinners is suppressed in verbose mode so it does not interleave with logs.
var VerboseMode bool

var logOutput io.Writer = os.Stdout

func init() {
	Logger = slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func SetLogLevel(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	VerboseMode = logLevel == slog.LevelDebug

	Logger = slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
}

// SetLogOutput redirects the logger, keeping the current level.
func SetLogOutput(w io.Writer, level string) {
	logOutput = w
	SetLogLevel(level)
}

// WithRun tags Logger with a fresh run id and returns the id.
func WithRun() string {
	id := uuid.NewString()
	Logger = Logger.With("run", id)
	return id
}
