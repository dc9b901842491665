// Package logsink implements the leveled logging sink from spec.md §6: a
// simple Debug < Info < Warning < Error < Critical logger with file+console
// output. It wraps go.uber.org/zap the way the teacher's cmd/server/main.go
// and internal/security/audit/logger.go do. Console lines use zap's console
// encoding (ISO8601 time, zap level name, message, then the fields as JSON)
// and the file output is JSON; neither uses the
// "YYYY-MM-DD HH:MM:SS [LEVEL] message" layout. The Critical level is
// written at zap's Error level with a "[CRITICAL] " message prefix, so it
// never panics.
package logsink

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is one of the five severities the sink recognizes.
type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
	CriticalLevel
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case CriticalLevel:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Info:
		return zapcore.InfoLevel
	case Warning:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Config controls where the sink writes and at what minimum level.
type Config struct {
	MinLevel    Level
	Development bool
	FilePath    string // empty disables file output
	Stdout      bool
}

// DefaultConfig mirrors the teacher's production zap defaults.
func DefaultConfig() Config {
	return Config{MinLevel: Info, Development: false, Stdout: true}
}

// Sink is the leveled logger used by every core component.
type Sink struct {
	logger *zap.SugaredLogger
}

// New builds a Sink from cfg. File+console output is wired via zap's own
// multi-core support; when FilePath is set, a second JSON core writes there
// alongside the console core.
func New(cfg Config) (*Sink, error) {
	var cores []zapcore.Core

	level := zap.NewAtomicLevelAt(cfg.MinLevel.zapLevel())

	if cfg.Stdout {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var encoder zapcore.Encoder
		if cfg.Development {
			encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			encoder = zapcore.NewConsoleEncoder(encCfg)
		} else {
			encoder = zapcore.NewConsoleEncoder(encCfg)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if cfg.FilePath != "" {
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logsink: open log file: %w", err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), level))
	}

	core := zapcore.NewTee(cores...)
	logger := zap.New(core)
	return &Sink{logger: logger.Sugar()}, nil
}

// Nop returns a Sink that discards everything, for tests.
func Nop() *Sink {
	return &Sink{logger: zap.NewNop().Sugar()}
}

func (s *Sink) log(level Level, fields []interface{}, msg string) {
	switch level {
	case Debug:
		s.logger.Debugw(msg, fields...)
	case Info:
		s.logger.Infow(msg, fields...)
	case Warning:
		s.logger.Warnw(msg, fields...)
	case Error:
		s.logger.Errorw(msg, fields...)
	case CriticalLevel:
		// Never escalate to a real panic/fatal: a Critical line from the
		// engine must not crash the process it's meant to protect.
		s.logger.With(fields...).Error("[CRITICAL] " + msg)
	}
}

func (s *Sink) Debugw(msg string, kv ...interface{})    { s.log(Debug, kv, msg) }
func (s *Sink) Infow(msg string, kv ...interface{})     { s.log(Info, kv, msg) }
func (s *Sink) Warningw(msg string, kv ...interface{})  { s.log(Warning, kv, msg) }
func (s *Sink) Errorw(msg string, kv ...interface{})    { s.log(Error, kv, msg) }
func (s *Sink) Criticalw(msg string, kv ...interface{}) { s.log(CriticalLevel, kv, msg) }

// Sync flushes any buffered log entries.
func (s *Sink) Sync() error {
	return s.logger.Sync()
}
