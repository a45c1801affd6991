package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	SILENT // No logging
)

var levelNames = map[LogLevel]string{
	DEBUG:  "DEBUG",
	INFO:   "INFO",
	WARN:   "WARN",
	ERROR:  "ERROR",
	SILENT: "SILENT",
}

// Format selects the output encoding.
type Format int

const (
	FormatConsole Format = iota
	FormatJSON
)

// Logger provides leveled logging with module support
type Logger struct {
	mu    sync.Mutex
	level LogLevel
	zl    zerolog.Logger
}

var defaultLogger *Logger
var once sync.Once

// Init initializes the global logger (call once at startup)
func Init(level LogLevel, output io.Writer, format Format, useColor bool) {
	once.Do(func() {
		defaultLogger = New(level, output, format, useColor)
	})
}

// New creates a new Logger instance
func New(level LogLevel, output io.Writer, format Format, useColor bool) *Logger {
	if output == nil {
		output = os.Stderr
	}

	w := output
	if format == FormatConsole {
		w = zerolog.ConsoleWriter{
			Out:        output,
			NoColor:    !useColor,
			TimeFormat: "2006/01/02 15:04:05.000000",
		}
	}

	return &Logger{
		level: level,
		zl:    zerolog.New(w).With().Timestamp().Logger(),
	}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *Logger) log(level LogLevel, module string, format string, args ...interface{}) {
	if level < l.GetLevel() {
		return
	}

	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.zl.Debug()
	case INFO:
		ev = l.zl.Info()
	case WARN:
		ev = l.zl.Warn()
	case ERROR:
		ev = l.zl.Error()
	default:
		return
	}

	if module != "" {
		ev = ev.Str("module", module)
	}
	ev.Msg(fmt.Sprintf(format, args...))
}

// Debug logs a debug message
func (l *Logger) Debug(module string, format string, args ...interface{}) {
	l.log(DEBUG, module, format, args...)
}

// Info logs an info message
func (l *Logger) Info(module string, format string, args ...interface{}) {
	l.log(INFO, module, format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(module string, format string, args ...interface{}) {
	l.log(WARN, module, format, args...)
}

// Error logs an error message
func (l *Logger) Error(module string, format string, args ...interface{}) {
	l.log(ERROR, module, format, args...)
}

// Printf adapts the logger to libraries that expect a Printf-style sink.
type Printf struct {
	Module string
	Level  LogLevel
}

func (p Printf) Printf(format string, args ...interface{}) {
	logAt(p.Level, p.Module, format, args...)
}

func (p Printf) Println(args ...interface{}) {
	logAt(p.Level, p.Module, "%s", strings.TrimSuffix(fmt.Sprintln(args...), "\n"))
}

// Write logs each call as one line, for libraries that take an io.Writer.
func (p Printf) Write(b []byte) (int, error) {
	logAt(p.Level, p.Module, "%s", strings.TrimRight(string(b), "\n"))
	return len(b), nil
}

func logAt(level LogLevel, module string, format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.log(level, module, format, args...)
	}
}

// Global logger functions (use default logger)

// SetLevel sets the global log level
func SetLevel(level LogLevel) {
	if defaultLogger != nil {
		defaultLogger.SetLevel(level)
	}
}

// GetLevel returns the global log level
func GetLevel() LogLevel {
	if defaultLogger != nil {
		return defaultLogger.GetLevel()
	}
	return INFO
}

// Debug logs a debug message using the global logger
func Debug(module string, format string, args ...interface{}) {
	logAt(DEBUG, module, format, args...)
}

// Info logs an info message using the global logger
func Info(module string, format string, args ...interface{}) {
	logAt(INFO, module, format, args...)
}

// Warn logs a warning message using the global logger
func Warn(module string, format string, args ...interface{}) {
	logAt(WARN, module, format, args...)
}

// Error logs an error message using the global logger
func Error(module string, format string, args ...interface{}) {
	logAt(ERROR, module, format, args...)
}

// ParseLevel parses a log level string
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "silent", "none":
		return SILENT, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", s)
	}
}

// ParseFormat parses "console" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "console", "text":
		return FormatConsole, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatConsole, fmt.Errorf("invalid log format: %s", s)
	}
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
