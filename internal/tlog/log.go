package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagged with the owning subsystem
// (wal, checkpoint, groupcommit, bucket, overflow, db).
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithTxID creates a child logger tagged with the write-transaction id a
// record belongs to.
func WithTxID(txid uint64) zerolog.Logger {
	return Logger.With().Uint64("txid", txid).Logger()
}

// WithSegment creates a child logger tagged with a WAL segment id.
func WithSegment(segmentID uint64) zerolog.Logger {
	return Logger.With().Uint64("segment", segmentID).Logger()
}

// WithLSN creates a child logger tagged with a write-ahead-log sequence
// number, for checkpoint and replay records that need to be correlated
// against a specific log position rather than a live transaction.
func WithLSN(lsn uint64) zerolog.Logger {
	return Logger.With().Uint64("lsn", lsn).Logger()
}

// Helper functions for the package-level logger. None of these ever log
// user key/value bytes — only counts, sizes, LSNs, and page ids, per the
// package's logging contract.
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

// Errorf logs msg at error level with err attached as a structured field,
// so a failure and its cause land in the same record instead of being
// concatenated into one opaque string.
func Errorf(msg string, err error) {
	Logger.Error().Err(err).Msg(msg)
}

// Fatal exits the process after logging msg at fatal level. The engine
// itself never calls this — durability-affecting failures are returned as
// errors to the caller. It exists for CLI entrypoints that cannot proceed
// (e.g. a malformed options file at startup).
func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
