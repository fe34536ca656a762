// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zap loggers used across veda.
//
// Interactive commands (the widget and the REPL) own the terminal, so they log
// to a rotated file only. The dev backend logs to stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output modes.
const (
	ModeFile    = "file"
	ModeConsole = "console"
	ModeTee     = "tee"
)

// Config controls where log records go and how they are rotated.
type Config struct {
	Mode       string // file, console or tee
	Level      string // debug, info, warn, error
	File       string // log file path for file and tee modes
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig returns file-only logging under ~/.veda/logs.
func DefaultConfig() Config {
	file := "veda.log"
	if home, err := os.UserHomeDir(); err == nil {
		file = filepath.Join(home, ".veda", "logs", "veda.log")
	}
	return Config{
		Mode:       ModeFile,
		Level:      "info",
		File:       file,
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// ParseLevel converts a level name into a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
	return lvl, nil
}

// New builds a logger for cfg. Zero-valued fields fall back to DefaultConfig.
func New(cfg Config) (*zap.Logger, error) {
	defaults := DefaultConfig()
	if cfg.Mode == "" {
		cfg.Mode = defaults.Mode
	}
	if cfg.File == "" {
		cfg.File = defaults.File
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = defaults.MaxSizeMB
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = defaults.MaxBackups
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = defaults.MaxAgeDays
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	switch cfg.Mode {
	case ModeFile:
		cores = append(cores, fileCore(cfg, level))
	case ModeConsole:
		cores = append(cores, consoleCore(level))
	case ModeTee:
		cores = append(cores, fileCore(cfg, level), consoleCore(level))
	default:
		return nil, fmt.Errorf("unknown log mode %q", cfg.Mode)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

func fileCore(cfg Config, level zapcore.Level) zapcore.Core {
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), level)
}

func consoleCore(level zapcore.Level) zapcore.Core {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level)
}
