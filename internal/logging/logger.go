// Package logging provides leveled, structured logging for the fill
// tracker worker. Fields accumulate on derived loggers and are emitted
// flat in each record, so a consumer-tagged logger can be passed down a
// call chain without re-stating context at every site.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"
)

// LogLevel is a log severity. Records below the logger's level are dropped.
type LogLevel int8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// LogFormat selects the record encoding
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

// Logger writes structured records at or above its configured level.
// Derived loggers share the parent's sink.
type Logger struct {
	level  LogLevel
	format LogFormat
	sink   *sink
	fields map[string]interface{}
}

// sink serializes writes from all derived loggers
type sink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *sink) writeLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, line)
}

// NewLogger creates a logger writing to stdout
func NewLogger(level LogLevel, format LogFormat) *Logger {
	return &Logger{
		level:  level,
		format: format,
		sink:   &sink{w: os.Stdout},
	}
}

// SetOutput redirects the logger's sink, shared by all derived loggers
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.w = w
}

// WithField derives a logger carrying one extra field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields derives a logger carrying extra fields. Later values win on
// key collision.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{level: l.level, format: l.format, sink: l.sink, fields: merged}
}

// WithError derives a logger carrying the error text
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(message string) { l.emit(LevelDebug, message) }
func (l *Logger) Info(message string)  { l.emit(LevelInfo, message) }
func (l *Logger) Warn(message string)  { l.emit(LevelWarn, message) }
func (l *Logger) Error(message string) { l.emit(LevelError, message) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.emit(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.emit(LevelError, fmt.Sprintf(format, args...))
}

// ErrorWithErr logs message at error level with the error text attached
func (l *Logger) ErrorWithErr(message string, err error) {
	l.WithError(err).Error(message)
}

// Fatal logs the message and exits
func (l *Logger) Fatal(message string) {
	l.emit(LevelFatal, message)
	os.Exit(1)
}

// Fatalf logs the formatted message and exits
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.emit(LevelFatal, fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) emit(level LogLevel, message string) {
	if level < l.level {
		return
	}

	record := make(map[string]interface{}, len(l.fields)+4)
	for k, v := range l.fields {
		record[k] = v
	}
	record["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	record["level"] = level.String()
	record["message"] = message

	// Caller location only for failures, where it pays for its cost
	if level >= LevelError {
		if _, file, line, ok := runtime.Caller(2); ok {
			record["caller"] = fmt.Sprintf("%s:%d", file, line)
		}
	}

	if l.format == FormatText {
		l.sink.writeLine(formatText(record, message))
		return
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		// A field that cannot marshal should not silence the record
		l.sink.writeLine(fmt.Sprintf(`{"level":%q,"message":%q}`, level.String(), message))
		return
	}
	l.sink.writeLine(string(encoded))
}

func formatText(record map[string]interface{}, message string) string {
	line := fmt.Sprintf("[%s] %s: %s", record["timestamp"], record["level"], message)

	keys := make([]string, 0, len(record))
	for k := range record {
		if k == "timestamp" || k == "level" || k == "message" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, record[k])
	}
	return line
}

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// InitGlobalLogger configures the process-wide fallback logger
func InitGlobalLogger(level LogLevel, format LogFormat) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = NewLogger(level, format)
}

// GetGlobalLogger returns the process-wide logger, creating a default one
// if InitGlobalLogger was never called
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo, FormatJSON)
	}
	return globalLogger
}

type loggerKey struct{}

// WithLogger attaches a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context's logger, or the global fallback
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return GetGlobalLogger()
}

// ParseLogLevel maps a config string to a LogLevel, defaulting to info
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		log.Printf("Unknown log level '%s', defaulting to 'info'", level)
		return LevelInfo
	}
}

// ParseLogFormat maps a config string to a LogFormat, defaulting to JSON
func ParseLogFormat(format string) LogFormat {
	switch format {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		log.Printf("Unknown log format '%s', defaulting to 'json'", format)
		return FormatJSON
	}
}
