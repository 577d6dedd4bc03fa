package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newBufferedLogger(t *testing.T, asJSON bool) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	factory := NewLoggingBuilder().
		SetMinimumLevel(LogLevelDebug).
		AddConsole(ConsoleLoggerOptions{JSON: asJSON, Output: &buf}).
		Build()
	return factory.CreateLogger("test"), &buf
}

func TestConsoleLogger_TextOutput(t *testing.T) {
	logger, buf := newBufferedLogger(t, false)

	logger.Info("component constructed", F("key", "Foo"), F("count", 1))

	line := buf.String()
	assert.Contains(t, line, "INFO [test] component constructed")
	assert.Contains(t, line, "key=Foo")
	assert.Contains(t, line, "count=1")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestConsoleLogger_MinimumLevel(t *testing.T) {
	logger, buf := newBufferedLogger(t, false)

	logger.Trace("hidden")
	assert.Empty(t, buf.String())

	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConsoleLogger_JSONOutput(t *testing.T) {
	logger, buf := newBufferedLogger(t, true)

	logger.WithFields(F("scope", "root")).Warn("dispose failed", F("error", errors.New("boom")))

	var data map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &data))
	assert.Equal(t, "warn", data["level"])
	assert.Equal(t, "test", data["logger"])
	assert.Equal(t, "dispose failed", data["msg"])
	assert.Equal(t, "root", data["scope"])
	assert.Equal(t, "boom", data["error"])
}

func TestJsonFormatterKeepsReservedKeysApart(t *testing.T) {
	out, err := NewJsonFormatter().Format(&LogEntry{
		Level:   LogLevelInfo,
		Message: "loaded",
		Fields:  []Field{F("msg", "shadow"), F("count", 3)},
	})
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, json.Unmarshal(out, &data))
	assert.Equal(t, "loaded", data["msg"])
	assert.Equal(t, "shadow", data["field.msg"])
	assert.Equal(t, float64(3), data["count"])
	assert.NotContains(t, data, "logger")
}

func TestTextFormatterQuotesValuesWithSpaces(t *testing.T) {
	out, err := (&TextFormatter{}).Format(&LogEntry{
		Level:   LogLevelWarn,
		Message: "变量未设置",
		Fields:  []Field{F("path", "C:/Program Files"), F("name", "MODE")},
	})
	require.NoError(t, err)
	assert.Equal(t, "WARN 变量未设置 {path=\"C:/Program Files\", name=MODE}\n", string(out))
}

func TestFactoryLevelAppliesToExistingLoggers(t *testing.T) {
	var buf bytes.Buffer
	factory := NewLoggingBuilder().
		SetMinimumLevel(LogLevelWarn).
		AddConsole(ConsoleLoggerOptions{Output: &buf}).
		Build()
	logger := factory.CreateLogger("installer").WithFields(F("run", 1))

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	factory.SetMinimumLevel(LogLevelDebug)
	assert.Equal(t, LogLevelDebug, factory.MinimumLevel())
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithCategory(t *testing.T) {
	logger, buf := newBufferedLogger(t, false)

	logger.WithCategory("rules").Info("loaded")
	assert.Contains(t, buf.String(), "[rules]")
}

func TestWithFieldsDoesNotShareBacking(t *testing.T) {
	logger, buf := newBufferedLogger(t, false)

	base := logger.WithFields(F("a", 1))
	first := base.WithFields(F("b", 2))
	second := base.WithFields(F("c", 3))

	first.Info("first")
	second.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "b=2")
	assert.NotContains(t, lines[1], "b=2")
	assert.Contains(t, lines[1], "c=3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("Warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LogLevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestFatalWritesOnceThenExits(t *testing.T) {
	var code int
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	logger, buf := newBufferedLogger(t, false)
	logger.Fatal("安装中止")

	assert.Equal(t, 1, code)
	assert.Equal(t, 1, strings.Count(buf.String(), "安装中止"))
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().WithCategory("x").WithFields(F("k", "v")).Error("ignored")
	})
	assert.NotNil(t, OrNop(nil))
}

func TestZapLoggerProvider(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	provider := NewZapLoggerProviderFrom(zap.New(core))
	provider.SetMinimumLevel(LogLevelInfo)

	logger := provider.CreateLogger("di")
	logger.Debug("dropped")
	logger.WithFields(F("key", "Foo")).Error("construction failed", F("error", errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "construction failed", entries[0].Message)
	assert.Equal(t, "di", entries[0].LoggerName)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "Foo", ctx["key"])
	assert.Equal(t, "boom", ctx["error"])
}

func TestConfigureZapFromSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installer.log")

	factory := NewLoggingBuilder().
		Configure(Settings{Level: "debug", Provider: ProviderZap, OutputPaths: []string{path}}).
		Build()
	factory.CreateLogger("rules").Debug("条件已加载", F("total", 2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "条件已加载")
	assert.Contains(t, string(data), `"total":2`)
}
