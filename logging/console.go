package logging

import (
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleLoggerOptions 控制台输出选项
type ConsoleLoggerOptions struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
	// JSON 为 true 时每行输出一个 JSON 对象，忽略文本相关选项
	JSON   bool
	Output io.Writer
}

// ConsoleLoggerProvider 把日志格式化后写到一个 io.Writer
type ConsoleLoggerProvider struct {
	formatter Formatter
	output    io.Writer
	level     *levelVar
	// 同一提供者的所有 logger 共用写锁，行不交错
	writeMu sync.Mutex
}

func NewConsoleLoggerProvider(options ConsoleLoggerOptions) *ConsoleLoggerProvider {
	out := options.Output
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleLoggerProvider{
		formatter: newFormatter(options),
		output:    out,
		level:     newLevelVar(LogLevelInfo),
	}
}

func newFormatter(options ConsoleLoggerOptions) Formatter {
	if options.JSON {
		return NewJsonFormatter()
	}
	text := NewTextFormatter()
	text.IncludeTimestamp = options.IncludeTimestamp
	text.ColorOutput = options.ColorOutput
	if options.TimestampFormat != "" {
		text.TimestampFormat = options.TimestampFormat
	}
	return text
}

func (p *ConsoleLoggerProvider) CreateLogger(category string) Logger {
	return p.newLogger(category, nil)
}

func (p *ConsoleLoggerProvider) SetMinimumLevel(level LogLevel) {
	p.level.set(level)
}

func (p *ConsoleLoggerProvider) newLogger(category string, fields []Field) *consoleLogger {
	l := &consoleLogger{provider: p, category: category, fields: fields}
	l.levelMethods = levelMethods{log: l.Log}
	return l
}

func (p *ConsoleLoggerProvider) write(entry *LogEntry) {
	data, err := p.formatter.Format(entry)
	if err != nil || len(data) == 0 {
		return
	}
	if data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, _ = p.output.Write(data)
}

type consoleLogger struct {
	levelMethods
	provider *ConsoleLoggerProvider
	category string
	fields   []Field
}

func (l *consoleLogger) Log(level LogLevel, msg string, fields ...Field) {
	if !l.provider.level.enabled(level) {
		return
	}
	l.provider.write(&LogEntry{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Message:  msg,
		Fields:   mergeFields(l.fields, fields),
	})
}

func (l *consoleLogger) WithFields(fields ...Field) Logger {
	return l.provider.newLogger(l.category, mergeFields(l.fields, fields))
}

func (l *consoleLogger) WithCategory(category string) Logger {
	return l.provider.newLogger(category, l.fields)
}
