package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLoggerOptions zap 日志选项
type ZapLoggerOptions struct {
	// Development 使用 zap 的开发配置（console 编码，带调用栈）
	Development bool
	// OutputPaths 输出目标，默认 stderr，支持文件路径
	OutputPaths []string
}

// ZapLoggerProvider 基于 zap 的日志提供者，适合生产环境与文件输出
type ZapLoggerProvider struct {
	base  *zap.Logger
	level zap.AtomicLevel
	mu    sync.RWMutex
}

// NewZapLoggerProvider 根据选项构建 zap logger
func NewZapLoggerProvider(options ZapLoggerOptions) (*ZapLoggerProvider, error) {
	cfg := zap.NewProductionConfig()
	if options.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	if len(options.OutputPaths) > 0 {
		cfg.OutputPaths = options.OutputPaths
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.Level = level

	base, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return &ZapLoggerProvider{base: base, level: level}, nil
}

// NewZapLoggerProviderFrom 包装一个已存在的 zap logger
func NewZapLoggerProviderFrom(base *zap.Logger) *ZapLoggerProvider {
	return &ZapLoggerProvider{
		base:  base,
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

func (p *ZapLoggerProvider) CreateLogger(category string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zapLogger{
		provider: p,
		logger:   p.base.Named(category),
	}
}

func (p *ZapLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.level.SetLevel(toZapLevel(level))
}

// Sync 刷新缓冲
func (p *ZapLoggerProvider) Sync() error {
	return p.base.Sync()
}

type zapLogger struct {
	provider *ZapLoggerProvider
	logger   *zap.Logger
	fields   []zap.Field
}

func (l *zapLogger) Trace(msg string, fields ...Field) { l.Log(LogLevelTrace, msg, fields...) }
func (l *zapLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field) { l.Log(LogLevelInfo, msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field) { l.Log(LogLevelWarn, msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *zapLogger) Fatal(msg string, fields ...Field) {
	l.Log(LogLevelFatal, msg, fields...)
	_ = l.logger.Sync()
	exit(1)
}

func (l *zapLogger) Log(level LogLevel, msg string, fields ...Field) {
	zl := toZapLevel(level)
	if !l.provider.level.Enabled(zl) {
		return
	}
	// Fatal 由上层负责退出，这里按 Error 级别写入，避免 zap 直接 os.Exit
	if zl == zapcore.FatalLevel {
		zl = zapcore.ErrorLevel
	}
	if ce := l.logger.Check(zl, msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

func (l *zapLogger) WithFields(fields ...Field) Logger {
	extra := toZapFields(fields)
	all := make([]zap.Field, 0, len(l.fields)+len(extra))
	all = append(append(all, l.fields...), extra...)
	return &zapLogger{
		provider: l.provider,
		logger:   l.logger.With(extra...),
		fields:   all,
	}
}

func (l *zapLogger) WithCategory(category string) Logger {
	return &zapLogger{
		provider: l.provider,
		logger:   l.provider.base.Named(category).With(l.fields...),
		fields:   l.fields,
	}
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelTrace, LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel
	}
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
