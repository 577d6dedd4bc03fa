package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadableConfiguration 可重新加载的配置。
// 重新加载时原子替换快照，读取方始终看到完整的一份配置。
type ReloadableConfiguration struct {
	*configuration
	builder *ConfigurationBuilder

	mu        sync.Mutex
	callbacks []func()
}

// BuildReloadable 构建可重新加载的配置
func (b *ConfigurationBuilder) BuildReloadable() (*ReloadableConfiguration, error) {
	data, err := b.load()
	if err != nil {
		return nil, err
	}
	return &ReloadableConfiguration{
		configuration: newConfiguration(data),
		builder:       b,
	}, nil
}

// OnReload 注册重新加载后的回调
func (c *ReloadableConfiguration) OnReload(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// Reload 重新加载所有配置源；任一源失败时保留旧快照
func (c *ReloadableConfiguration) Reload() error {
	data, err := c.builder.load()
	if err != nil {
		return err
	}
	c.store.replace(data)

	c.mu.Lock()
	callbacks := append([]func(){}, c.callbacks...)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// Generation 返回当前快照的代数，构建时为 1，每次成功重新加载加一
func (c *ReloadableConfiguration) Generation() uint64 {
	return c.store.load().generation
}

// Watch 监听文件变更并重新加载，直到 ctx 结束。
// 编辑器常用先删后建的方式保存，所以监听的是文件所在目录。
func (c *ReloadableConfiguration) Watch(ctx context.Context, onError func(error), paths ...string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	watched := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = watcher.Close()
			return err
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	if onError == nil {
		onError = func(error) {}
	}

	go func() {
		defer watcher.Close()

		// 合并短时间内的多次写入
		const debounce = 100 * time.Millisecond
		var timer *time.Timer
		reload := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[filepath.Clean(event.Name)] {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case <-reload:
				if err := c.Reload(); err != nil {
					onError(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				onError(err)
			}
		}
	}()

	return nil
}
