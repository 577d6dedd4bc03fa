package logging

import (
	"os"
	"sync"
)

// Field 结构化日志字段
type Field struct {
	Key   string
	Value any
}

// F 构造 Field
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger 带分类与固定字段的结构化日志
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal 写入后退出进程
	Fatal(msg string, fields ...Field)
	Log(level LogLevel, msg string, fields ...Field)
	WithFields(fields ...Field) Logger
	WithCategory(category string) Logger
}

// LoggerFactory 按分类创建 logger，输出到所有提供者
type LoggerFactory interface {
	CreateLogger(category string) Logger
	AddProvider(provider LoggerProvider)
	SetMinimumLevel(level LogLevel)
	MinimumLevel() LogLevel
}

// LoggerProvider 一种输出方式（控制台、zap）
type LoggerProvider interface {
	CreateLogger(category string) Logger
	SetMinimumLevel(level LogLevel)
}

// exit 由 Fatal 调用
var exit = os.Exit

// levelMethods 把各级别方法转发到 log，供具体 logger 嵌入
type levelMethods struct {
	log func(level LogLevel, msg string, fields ...Field)
}

func (m levelMethods) Trace(msg string, fields ...Field) { m.log(LogLevelTrace, msg, fields...) }
func (m levelMethods) Debug(msg string, fields ...Field) { m.log(LogLevelDebug, msg, fields...) }
func (m levelMethods) Info(msg string, fields ...Field)  { m.log(LogLevelInfo, msg, fields...) }
func (m levelMethods) Warn(msg string, fields ...Field)  { m.log(LogLevelWarn, msg, fields...) }
func (m levelMethods) Error(msg string, fields ...Field) { m.log(LogLevelError, msg, fields...) }

func (m levelMethods) Fatal(msg string, fields ...Field) {
	m.log(LogLevelFatal, msg, fields...)
	exit(1)
}

type loggerFactory struct {
	mu        sync.RWMutex
	providers []LoggerProvider
	level     *levelVar
}

// newLoggerFactory 创建工厂，providers 统一设为 level
func newLoggerFactory(level LogLevel, providers []LoggerProvider) *loggerFactory {
	f := &loggerFactory{level: newLevelVar(level)}
	for _, p := range providers {
		f.AddProvider(p)
	}
	return f
}

func (f *loggerFactory) CreateLogger(category string) Logger {
	f.mu.RLock()
	defer f.mu.RUnlock()
	loggers := make([]Logger, len(f.providers))
	for i, p := range f.providers {
		loggers[i] = p.CreateLogger(category)
	}
	return newCompositeLogger(loggers, f.level, nil)
}

// AddProvider 只应在创建 logger 之前调用，已创建的 logger 不会输出到新提供者
func (f *loggerFactory) AddProvider(provider LoggerProvider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	provider.SetMinimumLevel(f.level.get())
	f.providers = append(f.providers, provider)
}

func (f *loggerFactory) MinimumLevel() LogLevel { return f.level.get() }

func (f *loggerFactory) SetMinimumLevel(level LogLevel) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	f.level.set(level)
	for _, p := range f.providers {
		p.SetMinimumLevel(level)
	}
}

// compositeLogger 把一条日志分发给每个提供者的 logger
type compositeLogger struct {
	levelMethods
	loggers []Logger
	level   *levelVar
	fields  []Field
}

func newCompositeLogger(loggers []Logger, level *levelVar, fields []Field) *compositeLogger {
	l := &compositeLogger{loggers: loggers, level: level, fields: fields}
	l.levelMethods = levelMethods{log: l.Log}
	return l
}

func (l *compositeLogger) Log(level LogLevel, msg string, fields ...Field) {
	if !l.level.enabled(level) {
		return
	}
	all := mergeFields(l.fields, fields)
	for _, logger := range l.loggers {
		logger.Log(level, msg, all...)
	}
}

func (l *compositeLogger) WithFields(fields ...Field) Logger {
	return newCompositeLogger(l.loggers, l.level, mergeFields(l.fields, fields))
}

func (l *compositeLogger) WithCategory(category string) Logger {
	loggers := make([]Logger, len(l.loggers))
	for i, logger := range l.loggers {
		loggers[i] = logger.WithCategory(category)
	}
	return newCompositeLogger(loggers, l.level, l.fields)
}

// mergeFields 有新字段时总是返回新切片，派生 logger 之间不共享底层数组
func mergeFields(base, extra []Field) []Field {
	if len(extra) == 0 {
		return base
	}
	out := make([]Field, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}
