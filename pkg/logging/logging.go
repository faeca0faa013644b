// Package logging builds the zap loggers used by the harness and its tools.
package logging

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrInvalidFormat is returned for a format other than console or json.
var ErrInvalidFormat = errors.New("invalid log format")

// Config describes a logger.
type Config struct {
	Format string `yaml:"format"` // "console" or "json"
	Level  string `yaml:"level"`  // debug, info, warn, error

	// File routes output to a rotated file instead of stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig logs info and above to stderr in console format.
func DefaultConfig() Config {
	return Config{
		Format:     "console",
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
	}
}

// New builds a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		var err error
		if level, err = zapcore.ParseLevel(cfg.Level); err != nil {
			return nil, fmt.Errorf("parse level: %w", err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, cfg.Format)
	}

	out := zapcore.Lock(os.Stderr)
	if cfg.File != "" {
		out = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		})
	}

	return zap.New(zapcore.NewCore(enc, out, level)), nil
}

// BadgerLogger adapts a zap logger to badger's logger interface.
type BadgerLogger struct {
	s *zap.SugaredLogger
}

// NewBadgerLogger tags every badger message with component=badger.
func NewBadgerLogger(l *zap.Logger) *BadgerLogger {
	return &BadgerLogger{s: l.With(zap.String("component", "badger")).Sugar()}
}

func (b *BadgerLogger) Errorf(format string, args ...interface{}) {
	b.s.Errorf(strings.TrimSpace(format), args...)
}

func (b *BadgerLogger) Warningf(format string, args ...interface{}) {
	b.s.Warnf(strings.TrimSpace(format), args...)
}

func (b *BadgerLogger) Infof(format string, args ...interface{}) {
	b.s.Infof(strings.TrimSpace(format), args...)
}

func (b *BadgerLogger) Debugf(format string, args ...interface{}) {
	b.s.Debugf(strings.TrimSpace(format), args...)
}
