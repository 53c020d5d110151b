package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// Config describes where logs go.
type Config struct {
	Level          string
	LogsDir        string
	Name           string
	Console        bool
	GraylogAddress string // empty disables GELF forwarding
}

// Manager owns the process logger and the writers behind it.
type Manager struct {
	logger      zerolog.Logger
	traceSample zerolog.Logger
	file        *os.File
	graylog     *gelf.Writer
	path        string
}

// ParseLevel converts a config level name, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup opens the session log file and builds the logger. A Graylog address
// that cannot be dialled is reported and skipped.
func Setup(cfg Config, sessionStart time.Time, hooks ...zerolog.Hook) (*Manager, error) {
	m := &Manager{}

	if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs dir: %w", err)
	}
	m.path = LogFilePath(cfg.LogsDir, cfg.Name, sessionStart)
	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	m.file = file

	writers := []io.Writer{
		// write console format without colors to file
		zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		},
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	var graylogErr error
	if cfg.GraylogAddress != "" {
		m.graylog, graylogErr = gelf.NewWriter(cfg.GraylogAddress)
		if graylogErr == nil {
			writers = append(writers, m.graylog)
		}
	}

	m.logger = build(zerolog.MultiLevelWriter(writers...), ParseLevel(cfg.Level), hooks...)
	m.traceSample = sampled(m.logger)

	if graylogErr != nil {
		m.logger.Warn().Err(graylogErr).Str("address", cfg.GraylogAddress).Msg("Graylog disabled")
	}
	m.logger.Info().Str("loglevel", m.logger.GetLevel().String()).Str("file", m.path).Msg("Logging set up")
	return m, nil
}

// New builds a logger on w without touching the filesystem.
func New(w io.Writer, level string, hooks ...zerolog.Hook) zerolog.Logger {
	return build(w, ParseLevel(level), hooks...)
}

func build(w io.Writer, level zerolog.Level, hooks ...zerolog.Hook) zerolog.Logger {
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	for _, h := range hooks {
		logger = logger.Hook(h)
	}
	return logger
}

// sampled allows 5 entries per 10 seconds, then 1 in 100.
func sampled(logger zerolog.Logger) zerolog.Logger {
	return logger.With().Bool("sampled", true).Logger().Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})
}

// Logger returns the configured logger.
func (m *Manager) Logger() zerolog.Logger {
	return m.logger
}

// TraceSample returns a rate-limited logger for hot paths.
func (m *Manager) TraceSample() zerolog.Logger {
	return m.traceSample
}

// Path returns the session log file.
func (m *Manager) Path() string {
	return m.path
}

// Close flushes and closes the log outputs.
func (m *Manager) Close() error {
	var firstErr error
	if m.graylog != nil {
		if err := m.graylog.Close(); err != nil {
			firstErr = err
		}
	}
	if m.file != nil {
		if err := m.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SessionHook tags every entry with the session name.
func SessionHook(session string) zerolog.Hook {
	return zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
		e.Str("session", session)
	})
}
