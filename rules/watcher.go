package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/installkit/logging"
)

// FlipListener 被监视条件的值发生变化时调用
type FlipListener func(id string, value bool)

// WatcherOptions 监视器选项
type WatcherOptions struct {
	// Schedule cron 表达式，默认每 5 秒
	Schedule string `json:"schedule"`
	// EnableSeconds 是否启用秒级字段
	EnableSeconds bool `json:"enableSeconds"`
	// Conditions 初始监视的条件 id 或表达式
	Conditions []string `json:"conditions"`
}

// NewDefaultWatcherOptions 默认选项
func NewDefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{Schedule: "@every 5s"}
}

// Watcher 按 cron 计划重新求值被监视的条件，值翻转时通知监听器。
// 用于感知不可缓存的条件（如文件存在性）以及供界面轮询。
type Watcher struct {
	engine   *Engine
	cron     *cron.Cron
	schedule string
	logger   logging.Logger

	mu        sync.Mutex
	watched   []string
	last      map[string]bool
	listeners []FlipListener
}

// NewWatcher 创建监视器
func NewWatcher(engine *Engine, opts WatcherOptions, logger logging.Logger) *Watcher {
	logger = logging.OrNop(logger).WithCategory("rules.watcher")
	if opts.Schedule == "" {
		opts.Schedule = NewDefaultWatcherOptions().Schedule
	}

	cronOpts := []cron.Option{cron.WithChain(cron.Recover(newCronLogger(logger)))}
	if opts.EnableSeconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	w := &Watcher{
		engine:   engine,
		cron:     cron.New(cronOpts...),
		schedule: opts.Schedule,
		logger:   logger,
		last:     make(map[string]bool),
	}
	w.Watch(opts.Conditions...)
	return w
}

// Watch 添加监视的条件，立即记录当前值作为基准
func (w *Watcher) Watch(ids ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range ids {
		if _, ok := w.last[id]; ok {
			continue
		}
		w.watched = append(w.watched, id)
		w.last[id] = w.engine.IsConditionTrue(id)
	}
}

// OnFlip 注册翻转监听器
func (w *Watcher) OnFlip(fn FlipListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Values 返回最近一次检查的结果
func (w *Watcher) Values() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]bool, len(w.last))
	for id, v := range w.last {
		out[id] = v
	}
	return out
}

type flip struct {
	id    string
	value bool
}

// Check 重新求值所有被监视的条件，返回翻转的数量
func (w *Watcher) Check() int {
	w.mu.Lock()
	var flips []flip
	for _, id := range w.watched {
		value := w.engine.IsConditionTrue(id)
		if value != w.last[id] {
			w.last[id] = value
			flips = append(flips, flip{id: id, value: value})
		}
	}
	listeners := append([]FlipListener(nil), w.listeners...)
	w.mu.Unlock()

	for _, f := range flips {
		w.logger.Debug("条件结果已翻转", logging.F("id", f.id), logging.F("value", f.value))
		for _, fn := range listeners {
			fn(f.id, f.value)
		}
	}
	return len(flips)
}

// ServiceName 托管服务名
func (w *Watcher) ServiceName() string { return "rules.watcher" }

// Start 实现 HostedService，阻塞直到 ctx 结束
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.schedule, func() { w.Check() }); err != nil {
		return fmt.Errorf("invalid watcher schedule %q: %w", w.schedule, err)
	}
	w.logger.Info(fmt.Sprintf("条件监视器已启动，调度表达式 '%s'", w.schedule))
	w.cron.Start()

	<-ctx.Done()
	<-w.cron.Stop().Done()
	return nil
}

// Stop 实现 HostedService
func (w *Watcher) Stop(ctx context.Context) error {
	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger 把 cron 的日志接口适配到 logging.Logger
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.F("error", err.Error()))
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []any) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.F(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
