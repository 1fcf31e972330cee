package common

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// PackageLoggers lists the logger names used across the module
var PackageLoggers = []string{"access", "persist", "db", "hub", "schedule", "transport/http", "transport/ws", "server", "client"}

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// mikeLogger forwards dragonboat style printf logging to a slog handler
type mikeLogger struct {
	name   string
	mu     sync.RWMutex
	level  logger.LogLevel
	logger *slog.Logger
}

func (l *mikeLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *mikeLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *mikeLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.log(slog.LevelDebug, format, args...)
	}
}

func (l *mikeLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.log(slog.LevelInfo, format, args...)
	}
}

func (l *mikeLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.log(slog.LevelWarn, format, args...)
	}
}

func (l *mikeLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.log(slog.LevelError, format, args...)
	}
}

func (l *mikeLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.log(slog.LevelError, "%s", msg)
	panic(msg)
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *mikeLogger) log(level slog.Level, format string, args ...interface{}) {
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...), "pkg", l.name)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// NewHandler creates the colored console handler used by all loggers. Colors are
// disabled when w is not a terminal.
func NewHandler(w *os.File, level slog.Leveler) slog.Handler {
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	var out io.Writer = colorable.NewColorable(w)
	return tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(w.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})
}

// LoggerFactory returns a dragonboat logger factory writing to handler
func LoggerFactory(handler slog.Handler) logger.Factory {
	base := slog.New(handler)
	return func(pkgName string) logger.ILogger {
		return &mikeLogger{
			name:   pkgName,
			level:  logger.INFO,
			logger: base,
		}
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

func toSlogLevel(level logger.LogLevel) slog.Level {
	switch level {
	case logger.DEBUG:
		return slog.LevelDebug
	case logger.WARNING:
		return slog.LevelWarn
	case logger.ERROR, logger.CRITICAL:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the console logger factory and sets the level of every
// package logger. It also becomes the default slog logger.
func InitLoggers(logLevel string) error {
	level, err := ParseLogLevel(logLevel)
	if err != nil {
		return err
	}
	handler := NewHandler(os.Stderr, toSlogLevel(level))
	slog.SetDefault(slog.New(handler))

	logger.SetLoggerFactory(LoggerFactory(handler))
	for _, name := range PackageLoggers {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}
