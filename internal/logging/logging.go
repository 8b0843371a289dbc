// Package logging builds the logrus logger shared by the command line tools.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config selects level, format and an optional rotating log file.
type Config struct {
	Level  string
	Format string
	// File, when set, receives log output instead of the console writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Defaults mirror the rotation limits used for long-running sweeps.
func Defaults() Config {
	return Config{Level: "info", Format: FormatText, MaxSizeMB: 5, MaxBackups: 7, MaxAgeDays: 7}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to console, or to cfg.File through a
// lumberjack rotator. The closer releases the file.
func New(cfg Config, console io.Writer) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	if cfg.File == "" {
		if console == nil {
			console = io.Discard
		}
		logger.SetOutput(console)
		return logger, nopCloser{}, nil
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
		LocalTime:  true,
	}
	logger.SetOutput(rotator)
	return logger, rotator, nil
}
