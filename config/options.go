package config

import (
	"fmt"
	"reflect"
	"sync"
)

// OptionMonitor 绑定到某个配置节的强类型值，配置重新加载后自动更新
type OptionMonitor[T any] interface {
	Value() T
	// OnChange 值真正改变时回调，返回取消函数
	OnChange(fn func(T)) (unsubscribe func())
}

// OptionsCache 是 OptionMonitor 的实现。
// 节不存在或绑定失败时保留原值，值没有变化时不回调。
type OptionsCache[T any] struct {
	config  Configuration
	section string

	mu      sync.RWMutex
	current T

	lmu       sync.Mutex
	listeners map[int]func(T)
	nextID    int
}

// NewOptionsCache 创建配置缓存，fallback 为初值
func NewOptionsCache[T any](config Configuration, section string, fallback T) *OptionsCache[T] {
	cache := &OptionsCache[T]{
		config:    config,
		section:   section,
		current:   fallback,
		listeners: make(map[int]func(T)),
	}
	_, _ = cache.reload()

	if rc, ok := config.(interface{ OnReload(func()) }); ok {
		rc.OnReload(func() {
			if changed, err := cache.reload(); err == nil && changed {
				cache.notify()
			}
		})
	}
	return cache
}

// reload 以当前值为底重新绑定，返回值是否变化
func (c *OptionsCache[T]) reload() (bool, error) {
	c.mu.RLock()
	next := c.current
	c.mu.RUnlock()

	if err := c.config.Bind(c.section, &next); err != nil {
		return false, fmt.Errorf("failed to bind config section %s: %w", c.section, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if reflect.DeepEqual(c.current, next) {
		return false, nil
	}
	c.current = next
	return true, nil
}

func (c *OptionsCache[T]) notify() {
	value := c.Value()

	c.lmu.Lock()
	fns := make([]func(T), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
}

// Value 返回当前值
func (c *OptionsCache[T]) Value() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// OnChange 实现 OptionMonitor
func (c *OptionsCache[T]) OnChange(fn func(T)) (unsubscribe func()) {
	c.lmu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}
