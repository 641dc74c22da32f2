package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Format represents the output format for logs
type Format int

const (
	// FormatConsole is human-readable console output
	FormatConsole Format = iota
	// FormatJSON is structured JSON output
	FormatJSON
)

// String returns the string representation of a Format
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "console"
}

// ParseFormat converts a string to a Format
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatConsole
}

// Level represents a logging level
type Level int

const (
	// DebugLevel is for debug messages
	DebugLevel Level = iota
	// InfoLevel is for informational messages
	InfoLevel
	// WarnLevel is for warning messages
	WarnLevel
	// ErrorLevel is for error messages
	ErrorLevel
)

// String returns the string representation of a Level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string to a Level
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides structured logging capabilities.
// A Logger and every child created with With share one output lock, so they
// are safe to use from concurrent sessions.
type Logger struct {
	level  Level
	format Format
	output io.Writer
	mu     *sync.Mutex
	fields []Field
}

// New creates a new Logger with the specified level and console format
func New(level Level) *Logger {
	return NewWithFormat(level, FormatConsole)
}

// NewWithFormat creates a new Logger with the specified level and format
func NewWithFormat(level Level, format Format) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: os.Stdout,
		mu:     &sync.Mutex{},
	}
}

// NewWithOutput creates a new Logger with the specified level and output writer
func NewWithOutput(level Level, output io.Writer) *Logger {
	return &Logger{
		level:  level,
		format: FormatConsole,
		output: output,
		mu:     &sync.Mutex{},
	}
}

// FileConfig controls rotation of a log file
type FileConfig struct {
	// Path of the log file; empty means stdout
	Path string
	// MaxSizeMB is the size at which the file is rotated
	MaxSizeMB int
	// MaxBackups is how many rotated files are kept
	MaxBackups int
	// MaxAgeDays is how long rotated files are kept
	MaxAgeDays int
	// Compress gzips rotated files
	Compress bool
}

// NewWithConfig creates a Logger writing to a rotated file when file.Path is set,
// or to stdout otherwise
func NewWithConfig(level Level, format Format, file FileConfig) *Logger {
	l := NewWithFormat(level, format)
	if file.Path != "" {
		l.output = &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    max(file.MaxSizeMB, 10),
			MaxBackups: max(file.MaxBackups, 1),
			MaxAge:     max(file.MaxAgeDays, 7),
			Compress:   file.Compress,
		}
	}
	return l
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// With returns a child logger that adds fields to every entry
func (l *Logger) With(fields ...Field) *Logger {
	child := *l
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(child.fields, l.fields...)
	child.fields = append(child.fields, fields...)
	return &child
}

// Close releases the output if it is a rotated file
func (l *Logger) Close() error {
	if c, ok := l.output.(*lumberjack.Logger); ok {
		return c.Close()
	}
	return nil
}

// Debug logs a debug message with optional fields
func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields...)
}

// Info logs an informational message with optional fields
func (l *Logger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields...)
}

// Warn logs a warning message with optional fields
func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields...)
}

// Error logs an error message with optional fields
func (l *Logger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields...)
}

// log is the internal logging method
func (l *Logger) log(level Level, msg string, fields ...Field) {
	if level < l.level {
		return
	}

	if len(l.fields) > 0 {
		fields = append(append([]Field{}, l.fields...), fields...)
	}

	var line string
	if l.format == FormatJSON {
		line = formatJSON(level, msg, fields)
	} else {
		line = formatConsole(level, msg, fields)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.output, line)
}

// formatConsole renders a human-readable console line
func formatConsole(level Level, msg string, fields []Field) string {
	var output strings.Builder
	output.WriteString(time.Now().UTC().Format(time.RFC3339))
	output.WriteString(" ")
	output.WriteString(level.String())
	output.WriteString(" ")
	output.WriteString(msg)

	for _, field := range fields {
		output.WriteString(" ")
		output.WriteString(field.Key)
		output.WriteString("=")
		output.WriteString(fmt.Sprintf("%v", field.Value))
	}

	output.WriteString("\n")
	return output.String()
}

// formatJSON renders one JSON object per line
func formatJSON(level Level, msg string, fields []Field) string {
	logEntry := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"level":     level.String(),
		"message":   msg,
	}

	for _, field := range fields {
		logEntry[field.Key] = field.Value
	}

	jsonBytes, err := json.Marshal(logEntry)
	if err != nil {
		// Fallback to console output if JSON marshaling fails
		return formatConsole(level, msg, fields)
	}

	return string(jsonBytes) + "\n"
}

type contextKey struct{}

// WithContext stores logger in ctx
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or an info-level stdout logger
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok && logger != nil {
		return logger
	}
	return New(InfoLevel)
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value any
}

// String creates a Field with a string value
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates a Field with an integer value
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates a Field with an int64 value
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a Field with a boolean value
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a Field rendered as a duration string
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Error creates a Field with an error value
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a Field with any value
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}
