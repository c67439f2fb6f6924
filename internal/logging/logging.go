// Package logging wraps zap.Logger the way the teacher's
// internal/common/logger.DynamicLogger does: atomic per-sink levels so
// verbosity can change at runtime, console+file cores, lumberjack
// rotation on the file sink.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatJSON    = "json"
	FormatConsole = "console"
	FormatText    = "text"
)

// Config is the logging section of config.EngineSpec.
type Config struct {
	Level   string        `yaml:"level"`
	Console ConsoleConfig `yaml:"console"`
	File    FileConfig    `yaml:"file"`
}

type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// Logger wraps *zap.Logger with per-sink atomic levels so a running
// engine can be turned up/down without restarting.
type Logger struct {
	*zap.Logger
	consoleLevel *zap.AtomicLevel
	fileLevel    *zap.AtomicLevel
	configured   Config
}

// New builds a Logger from cfg. At least one sink must be enabled.
func New(cfg Config) (*Logger, error) {
	globalLevel := parseLevel(cfg.Level)

	var cores []zapcore.Core
	var consoleLevel, fileLevel *zap.AtomicLevel

	if cfg.Console.Enabled {
		level := zap.NewAtomicLevelAt(resolveLevel(cfg.Console.Level, globalLevel))
		consoleLevel = &level
		cores = append(cores, zapcore.NewCore(encoderFor(cfg.Console.Format), zapcore.Lock(os.Stdout), consoleLevel))
	}

	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("logging: file.path must be set when file logging is enabled")
		}
		level := zap.NewAtomicLevelAt(resolveLevel(cfg.File.Level, globalLevel))
		fileLevel = &level
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.Rotation.MaxSize,
			MaxAge:     cfg.File.Rotation.MaxAge,
			MaxBackups: cfg.File.Rotation.MaxBackups,
			Compress:   cfg.File.Rotation.Compress,
		})
		cores = append(cores, zapcore.NewCore(encoderFor(cfg.File.Format), writer, fileLevel))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("logging: at least one of console or file must be enabled")
	}

	var core zapcore.Core
	if len(cores) == 1 {
		core = cores[0]
	} else {
		core = zapcore.NewTee(cores...)
	}

	return &Logger{Logger: zap.New(core), consoleLevel: consoleLevel, fileLevel: fileLevel, configured: cfg}, nil
}

// Default returns a console-only, debug-level logger for use before a
// config file has been loaded.
func Default() *Logger {
	l, err := New(Config{Level: LevelDebug, Console: ConsoleConfig{Enabled: true, Format: FormatConsole}})
	if err != nil {
		panic(err)
	}
	return l
}

// SetLevel adjusts both sinks at runtime without rebuilding cores.
func (l *Logger) SetLevel(level string) {
	lv := parseLevel(level)
	if l.consoleLevel != nil {
		l.consoleLevel.SetLevel(lv)
	}
	if l.fileLevel != nil {
		l.fileLevel.SetLevel(lv)
	}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case LevelDebug:
		return zap.DebugLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func resolveLevel(outputLevel string, globalLevel zapcore.Level) zapcore.Level {
	if outputLevel != "" {
		return parseLevel(outputLevel)
	}
	return globalLevel
}

func encoderFor(format string) zapcore.Encoder {
	if format == FormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	if format == FormatText {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}
