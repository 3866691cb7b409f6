package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// Level defines the logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the Level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to Level, defaulting to Info.
func ParseLevel(levelStr string) Level {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// StdLogger implements the ports.Logger interface on the standard log package.
// Fields render as sorted key=value pairs so log lines are grep-stable.
type StdLogger struct {
	logger    *log.Logger
	level     Level
	component string
}

// NewStdLogger creates a new leveled logger writing to os.Stderr.
func NewStdLogger(level Level) *StdLogger {
	return &StdLogger{
		logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		level:  level,
	}
}

// WithComponent returns a logger that prefixes every line with the component
// name. The underlying writer and level are shared.
func (l *StdLogger) WithComponent(name string) *StdLogger {
	return &StdLogger{logger: l.logger, level: l.level, component: name}
}

func (l *StdLogger) write(level Level, msg string, err error, fields []map[string]interface{}) {
	if level < l.level {
		return
	}

	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(level.String())
	sb.WriteString("]")
	if l.component != "" {
		sb.WriteString(" ")
		sb.WriteString(l.component)
		sb.WriteString(":")
	}
	sb.WriteString(" ")
	sb.WriteString(msg)

	if err != nil {
		sb.WriteString(" | error: ")
		sb.WriteString(err.Error())
	}

	if len(fields) > 0 && len(fields[0]) > 0 {
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" |")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[0][k]))
		}
	}

	l.logger.Println(sb.String())
}

// Debug logs a message at Debug level.
func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(LevelDebug, msg, nil, fields)
}

// Info logs a message at Info level.
func (l *StdLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(LevelInfo, msg, nil, fields)
}

// Warn logs a message at Warning level.
func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.write(LevelWarn, msg, nil, fields)
}

// Error logs an error message at Error level.
func (l *StdLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.write(LevelError, msg, err, fields)
}
