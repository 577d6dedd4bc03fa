package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// LogEntry 一条待格式化的日志
type LogEntry struct {
	Time     time.Time
	Level    LogLevel
	Category string
	Message  string
	Fields   []Field
}

// Formatter 把日志条目编码为一行输出
type Formatter interface {
	Format(entry *LogEntry) ([]byte, error)
}

var buffers = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func getBuffer() *bytes.Buffer { return buffers.Get().(*bytes.Buffer) }

func putBuffer(b *bytes.Buffer) {
	b.Reset()
	buffers.Put(b)
}

// 保留字段名，与 zap 生产配置的 JSON 键一致，便于两种输出混合检索
const (
	keyTime     = "ts"
	keyLevel    = "level"
	keyCategory = "logger"
	keyMessage  = "msg"
)

// JsonFormatter 输出单行 JSON，字段平铺在顶层。
// 字段名与保留键冲突时加 "field." 前缀。
type JsonFormatter struct {
	TimestampFormat string
}

// NewJsonFormatter 创建 JSON 格式化器
func NewJsonFormatter() *JsonFormatter {
	return &JsonFormatter{TimestampFormat: time.RFC3339Nano}
}

func (f *JsonFormatter) Format(entry *LogEntry) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	buf.WriteByte('{')
	writeJSONPair(buf, keyTime, entry.Time.Format(f.TimestampFormat), true)
	writeJSONPair(buf, keyLevel, strings.ToLower(entry.Level.String()), false)
	if entry.Category != "" {
		writeJSONPair(buf, keyCategory, entry.Category, false)
	}
	writeJSONPair(buf, keyMessage, entry.Message, false)

	for _, field := range entry.Fields {
		key := field.Key
		switch key {
		case keyTime, keyLevel, keyCategory, keyMessage:
			key = "field." + key
		}
		writeJSONPair(buf, key, fieldValue(field.Value), false)
	}
	buf.WriteString("}\n")

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func writeJSONPair(buf *bytes.Buffer, key string, value any, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')

	v, err := json.Marshal(value)
	if err != nil {
		v, _ = json.Marshal(fmt.Sprint(value))
	}
	buf.Write(v)
}

// fieldValue 把 error 与 Stringer（如 di.Key）转成字符串，其余原样编码
func fieldValue(v any) any {
	switch val := v.(type) {
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}
	return v
}

// TextFormatter 人读格式：时间 级别 [分类] 消息 {k=v, ...}。
// 含空白或引号的值加引号。
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	ColorOutput      bool
}

// NewTextFormatter 创建文本格式化器
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		IncludeTimestamp: true,
		TimestampFormat:  "2006-01-02 15:04:05",
	}
}

func (f *TextFormatter) Format(entry *LogEntry) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if f.IncludeTimestamp {
		buf.WriteString(entry.Time.Format(f.TimestampFormat))
		buf.WriteByte(' ')
	}

	if f.ColorOutput {
		buf.WriteString(colorize(entry.Level, entry.Level.String()))
	} else {
		buf.WriteString(entry.Level.String())
	}
	if entry.Category != "" {
		buf.WriteString(" [")
		buf.WriteString(entry.Category)
		buf.WriteByte(']')
	}
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		buf.WriteString(" {")
		for i, field := range entry.Fields {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(field.Key)
			buf.WriteByte('=')
			s := fmt.Sprint(fieldValue(field.Value))
			if strings.ContainsAny(s, " \t\n\"") {
				s = fmt.Sprintf("%q", s)
			}
			buf.WriteString(s)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('\n')

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
