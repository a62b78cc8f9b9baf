// Package logger 配置全局 zerolog，并提供从 context 取 logger 的入口。
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level   string     `yaml:"level"`
	Format  string     `yaml:"format"` // json 或 console
	File    FileConfig `yaml:"file"`
	Service string     `yaml:"-"`
}

// FileConfig 配置滚动日志文件，Path 为空时只输出到标准输出。
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Init 设置全局 logger，同时把它作为 zerolog.Ctx 在 context 中没有 logger 时的默认值。
func Init(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if cfg.File.Path != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}

	l := zerolog.New(out).With().Timestamp().Logger()
	if cfg.Service != "" {
		l = l.With().Str("service", cfg.Service).Logger()
	}
	zlog.Logger = l
	zerolog.DefaultContextLogger = &zlog.Logger
	return l
}

// Ctx 返回 context 中的 logger，没有时回落到全局 logger。
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithTraceID 返回携带 trace_id 字段的新 context。
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	l := zerolog.Ctx(ctx).With().Str("trace_id", traceID).Logger()
	return l.WithContext(ctx)
}
