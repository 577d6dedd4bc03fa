package logging

import (
	"os"
	"sync"
)

// 输出方式
const (
	ProviderConsole = "console"
	ProviderJSON    = "json"
	ProviderZap     = "zap"
)

// Settings 日志配置，对应配置文件中的 logging 节
type Settings struct {
	Level string `json:"level"`
	// Provider console、json 或 zap，空值视为 console
	Provider    string   `json:"provider"`
	Development bool     `json:"development"`
	OutputPaths []string `json:"outputPaths"`
}

// LoggingBuilder 组装日志提供者与最低级别
type LoggingBuilder struct {
	mu           sync.Mutex
	providers    []LoggerProvider
	minimumLevel LogLevel
}

// NewLoggingBuilder 创建日志构建器，默认级别 Info
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{minimumLevel: LogLevelInfo}
}

// SetMinimumLevel 设置最小日志级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.mu.Lock()
	b.minimumLevel = level
	b.mu.Unlock()
	return b
}

// AddProvider 添加日志提供者
func (b *LoggingBuilder) AddProvider(provider LoggerProvider) *LoggingBuilder {
	b.mu.Lock()
	b.providers = append(b.providers, provider)
	b.mu.Unlock()
	return b
}

// AddConsole 添加控制台输出，不传选项时输出到 stdout 并带颜色
func (b *LoggingBuilder) AddConsole(options ...ConsoleLoggerOptions) *LoggingBuilder {
	opts := ConsoleLoggerOptions{
		IncludeTimestamp: true,
		ColorOutput:      true,
		Output:           os.Stdout,
	}
	if len(options) > 0 {
		opts = options[0]
	}
	return b.AddProvider(NewConsoleLoggerProvider(opts))
}

// AddZap 添加 zap 输出，构建失败时退回到 stderr 控制台
func (b *LoggingBuilder) AddZap(options ZapLoggerOptions) *LoggingBuilder {
	provider, err := NewZapLoggerProvider(options)
	if err != nil {
		return b.AddConsole(ConsoleLoggerOptions{IncludeTimestamp: true, Output: os.Stderr})
	}
	return b.AddProvider(provider)
}

// Configure 按配置选择级别与输出方式，未知的 Provider 按 console 处理
func (b *LoggingBuilder) Configure(s Settings) *LoggingBuilder {
	if s.Level != "" {
		b.SetMinimumLevel(ParseLevel(s.Level))
	}
	switch s.Provider {
	case ProviderZap:
		return b.AddZap(ZapLoggerOptions{Development: s.Development, OutputPaths: s.OutputPaths})
	case ProviderJSON:
		return b.AddConsole(ConsoleLoggerOptions{IncludeTimestamp: true, JSON: true, Output: os.Stdout})
	default:
		return b.AddConsole()
	}
}

// Build 构建日志工厂；没有提供者时工厂创建的 logger 不输出任何内容
func (b *LoggingBuilder) Build() LoggerFactory {
	b.mu.Lock()
	providers := append([]LoggerProvider(nil), b.providers...)
	level := b.minimumLevel
	b.mu.Unlock()

	return newLoggerFactory(level, providers)
}
