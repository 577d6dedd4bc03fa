package di

import (
	"fmt"
	"io"
	"reflect"

	"go.uber.org/multierr"

	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/metrics"
)

// Disposable 可由容器释放的组件
type Disposable interface {
	Dispose() error
}

// CreateChildContainer 创建以当前容器为父的子容器，子容器继承注册策略与日志。
func (c *container) CreateChildContainer() (Container, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed.Load() {
		return nil, ErrDisposed
	}

	o := c.opts
	o.name = fmt.Sprintf("%s/%d", c.opts.name, len(c.children))
	child := newContainer(c, o)
	c.children = append(c.children, child)
	return child, nil
}

// RemoveChildContainer 从子容器集合中移除 child 但不释放它。
// child 仍保留父引用用于查找。
func (c *container) RemoveChildContainer(child Container) bool {
	target := scopeOf(child)
	if target == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detachLocked(target)
}

func (c *container) detachLocked(child *container) bool {
	for i, existing := range c.children {
		if existing == child {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return true
		}
	}
	return false
}

// Dispose 先深度优先释放子容器，再逆序释放本作用域构造的实例，最后清空注册表并与父容器断开。
// 错误只记录日志，重复调用无效果。
func (c *container) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	children := c.children
	constructed := c.constructed
	parent := c.parent
	c.children = nil
	c.constructed = nil
	c.entries = make(map[Key]*entry)
	c.classes = make(map[string]reflect.Type)
	c.parent = nil
	c.mu.Unlock()

	for _, child := range children {
		child.Dispose()
	}

	var errs error
	for i := len(constructed) - 1; i >= 0; i-- {
		e := constructed[i]
		if err := disposeInstance(e.instance); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.key, err))
		}
	}

	if parent != nil {
		parent.mu.Lock()
		parent.detachLocked(c)
		parent.mu.Unlock()
	}

	metrics.ContainerDisposed()
	if errs != nil {
		c.opts.logger.Warn("释放容器时出现错误",
			logging.F("count", len(multierr.Errors(errs))),
			logging.F("error", errs))
		return
	}
	c.opts.logger.Debug("容器已释放", logging.F("instances", len(constructed)))
}

// disposeInstance 支持 Dispose() error、Dispose() 与 io.Closer
func disposeInstance(v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("释放时 panic: %v", r)
		}
	}()

	switch d := v.(type) {
	case Disposable:
		return d.Dispose()
	case interface{ Dispose() }:
		d.Dispose()
		return nil
	case io.Closer:
		return d.Close()
	}
	return nil
}

// scopeOf 取出 Container 背后的作用域，委托容器取其已创建的后备容器
func scopeOf(c Container) *container {
	switch v := c.(type) {
	case *container:
		return v
	case *boundContainer:
		return v.container
	case interface{ Resolved() (Container, bool) }:
		if backing, ok := v.Resolved(); ok {
			return scopeOf(backing)
		}
	}
	return nil
}
