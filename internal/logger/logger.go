// Package logger builds the process-wide zap logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultFileName = "assistant-client.log"

// Config controls level and sinks.
type Config struct {
	Level  string     `mapstructure:"level" yaml:"level"`
	Stdout bool       `mapstructure:"stdout" yaml:"stdout"`
	File   FileConfig `mapstructure:"file" yaml:"file"`
}

// FileConfig configures the rotating file sink.
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	Name       string `mapstructure:"name" yaml:"name"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Logger couples the zap logger with the file sink it may own.
type Logger struct {
	*zap.Logger
	closers []io.Closer
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	_ = l.Sync()
	var first error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New builds a JSON logger. verbose forces debug level.
func New(cfg Config, verbose bool) (*Logger, error) {
	return newWithStdout(cfg, verbose, os.Stdout)
}

func newWithStdout(cfg Config, verbose bool, stdout io.Writer) (*Logger, error) {
	level := parseLevel(cfg.Level)
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000"))
	}
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	var (
		sinks   []zapcore.WriteSyncer
		closers []io.Closer
	)
	if cfg.Stdout {
		sinks = append(sinks, zapcore.AddSync(stdout))
	}
	if cfg.File.Enabled {
		fileWriter, err := newFileWriter(cfg.File)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, zapcore.AddSync(fileWriter))
		closers = append(closers, fileWriter)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, zapcore.AddSync(stdout))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(sinks...), level)
	return &Logger{Logger: zap.New(core, zap.AddCaller()), closers: closers}, nil
}

func newFileWriter(fileCfg FileConfig) (*lumberjack.Logger, error) {
	dir := strings.TrimSpace(fileCfg.Path)
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}

	filename := strings.TrimSpace(fileCfg.Name)
	if filename == "" {
		filename = defaultFileName
	}

	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, filename),
		MaxSize:    fileCfg.MaxSizeMB,
		MaxBackups: max(fileCfg.MaxBackups, 0),
		MaxAge:     max(fileCfg.MaxAgeDays, 0),
		Compress:   fileCfg.Compress,
		LocalTime:  true,
	}
	if w.MaxSize <= 0 {
		w.MaxSize = 100
	}
	return w, nil
}

// parseLevel maps a config string to a zap level. Unknown values mean info.
func parseLevel(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
