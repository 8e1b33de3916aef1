// Package mlog defines the leveled structured logging interface used across
// the service, along with a stdlib-backed implementation used in tests and
// as the ultimate fallback.
package mlog

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger is the common interface implemented by every log backend in this
// service.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)

	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Fatalln(args ...any)

	WithFields(fields ...any) Logger

	Sync() error
}

// LogLevel represents the verbosity of a Logger.
type LogLevel int8

const (
	// FatalLevel logs and then terminates the process.
	FatalLevel LogLevel = iota
	// ErrorLevel logs errors that should definitely be noted.
	ErrorLevel
	// WarnLevel logs non-critical entries that deserve eyes.
	WarnLevel
	// InfoLevel logs general operational entries.
	InfoLevel
	// DebugLevel logs verbose, development-time detail. Enabled by --dev.
	DebugLevel
)

// ParseLevel parses a case-insensitive level name into a LogLevel.
func ParseLevel(lvl string) (LogLevel, error) {
	switch strings.ToLower(lvl) {
	case "fatal":
		return FatalLevel, nil
	case "error":
		return ErrorLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	}

	var l LogLevel

	return l, fmt.Errorf("not a valid LogLevel: %q", lvl)
}

// GoLogger is a stdlib `log`-backed Logger, used in tests and as a fallback
// when no structured backend has been configured.
type GoLogger struct {
	fields []any
	Level  LogLevel
}

// NewGoLogger returns a GoLogger at the given level.
func NewGoLogger(level LogLevel) *GoLogger {
	return &GoLogger{Level: level}
}

// IsLevelEnabled reports whether the given level would be emitted.
func (l *GoLogger) IsLevelEnabled(level LogLevel) bool {
	return l.Level >= level
}

func (l *GoLogger) Info(args ...any) {
	if l.IsLevelEnabled(InfoLevel) {
		log.Print(append([]any{"INFO ", l.fields}, args...)...)
	}
}

func (l *GoLogger) Infof(format string, args ...any) {
	if l.IsLevelEnabled(InfoLevel) {
		log.Printf("INFO "+format, args...)
	}
}

func (l *GoLogger) Infoln(args ...any) {
	if l.IsLevelEnabled(InfoLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Error(args ...any) {
	if l.IsLevelEnabled(ErrorLevel) {
		log.Print(append([]any{"ERROR "}, args...)...)
	}
}

func (l *GoLogger) Errorf(format string, args ...any) {
	if l.IsLevelEnabled(ErrorLevel) {
		log.Printf("ERROR "+format, args...)
	}
}

func (l *GoLogger) Errorln(args ...any) {
	if l.IsLevelEnabled(ErrorLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Warn(args ...any) {
	if l.IsLevelEnabled(WarnLevel) {
		log.Print(append([]any{"WARN "}, args...)...)
	}
}

func (l *GoLogger) Warnf(format string, args ...any) {
	if l.IsLevelEnabled(WarnLevel) {
		log.Printf("WARN "+format, args...)
	}
}

func (l *GoLogger) Warnln(args ...any) {
	if l.IsLevelEnabled(WarnLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Debug(args ...any) {
	if l.IsLevelEnabled(DebugLevel) {
		log.Print(append([]any{"DEBUG "}, args...)...)
	}
}

func (l *GoLogger) Debugf(format string, args ...any) {
	if l.IsLevelEnabled(DebugLevel) {
		log.Printf("DEBUG "+format, args...)
	}
}

func (l *GoLogger) Debugln(args ...any) {
	if l.IsLevelEnabled(DebugLevel) {
		log.Println(args...)
	}
}

func (l *GoLogger) Fatal(args ...any) {
	log.Fatal(args...)
}

func (l *GoLogger) Fatalf(format string, args ...any) {
	log.Fatalf(format, args...)
}

func (l *GoLogger) Fatalln(args ...any) {
	log.Fatalln(args...)
}

// WithFields returns a new GoLogger at the same level carrying the given
// key/value pairs. Only Info includes them in its output; the other
// methods do not print them.
//
//nolint:ireturn
func (l *GoLogger) WithFields(fields ...any) Logger {
	return &GoLogger{
		Level:  l.Level,
		fields: fields,
	}
}

func (l *GoLogger) Sync() error { return nil }

type loggerContextKey string

const ctxKey loggerContextKey = "logger"

// NewLoggerFromContext extracts the Logger stored in ctx, or a NoneLogger if
// none was stored.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) Logger {
	if logger := ctx.Value(ctxKey); logger != nil {
		if l, ok := logger.(Logger); ok {
			return l
		}
	}

	return &NoneLogger{}
}

// ContextWithLogger returns a child context carrying logger.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxKey, logger)
}
