package logging

import (
	"strings"
	"sync/atomic"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

var levelNames = [...]string{
	LogLevelTrace: "TRACE",
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
	LogLevelFatal: "FATAL",
}

// ANSI 颜色，下标为级别
var levelColors = [...]string{
	LogLevelTrace: "\033[90m",
	LogLevelDebug: "\033[36m",
	LogLevelInfo:  "\033[32m",
	LogLevelWarn:  "\033[33m",
	LogLevelError: "\033[31m",
	LogLevelFatal: "\033[35m",
}

func (l LogLevel) valid() bool { return l >= LogLevelTrace && l <= LogLevelFatal }

func (l LogLevel) String() string {
	if !l.valid() {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel 不区分大小写解析级别名，warning 等同 warn，无法识别时返回 LogLevelInfo
func ParseLevel(name string) LogLevel {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "WARNING" {
		return LogLevelWarn
	}
	for level, n := range levelNames {
		if n == name {
			return LogLevel(level)
		}
	}
	return LogLevelInfo
}

func colorize(level LogLevel, text string) string {
	if !level.valid() {
		return text
	}
	return levelColors[level] + text + "\033[0m"
}

// levelVar 在工厂、提供者与 logger 之间共享的级别，修改立即生效
type levelVar struct{ v atomic.Int64 }

func newLevelVar(level LogLevel) *levelVar {
	l := &levelVar{}
	l.set(level)
	return l
}

func (l *levelVar) get() LogLevel      { return LogLevel(l.v.Load()) }
func (l *levelVar) set(level LogLevel) { l.v.Store(int64(level)) }

// enabled 判断 level 是否不低于当前级别
func (l *levelVar) enabled(level LogLevel) bool { return level >= l.get() }
