// Package logging builds the process-wide zap logger: a rotated JSON file
// core teed with a console core on stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ziadkadry99/docqa/internal/config"
)

// Options control logger construction.
type Options struct {
	Level   string
	File    string
	Format  string // "console" or "json"
	Verbose bool

	// Console receives console output. Defaults to os.Stderr so stdout stays
	// free for command output and the MCP stdio transport.
	Console io.Writer
}

// FromConfig maps the log section of the config onto Options.
func FromConfig(cfg config.LogConfig, verbose bool) Options {
	return Options{
		Level:   cfg.Level,
		File:    cfg.File,
		Format:  cfg.Format,
		Verbose: verbose,
	}
}

// New builds a logger. An empty File disables the file core.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var cores []zapcore.Core

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
	}

	var consoleEncoder zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	// Without -v the console only shows warnings; the file keeps everything.
	consoleLevel := zapcore.WarnLevel
	if opts.Verbose {
		consoleLevel = zapcore.DebugLevel
	}
	cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(console)), consoleLevel))

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
