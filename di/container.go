package di

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/metrics"
)

// Container 是带父子作用域的组件容器。
//
// 解析顺序：本作用域缓存 -> 本作用域绑定（构造并缓存，每个作用域最多一次）
// -> 父容器解析（不在子容器中缓存）-> 不存在（nil, nil）。
type Container interface {
	// AddComponent 注册绑定，impl 的推断规则见 newBinding
	AddComponent(key Key, impl any) error
	// AddProvider 为 typ 注册延迟工厂
	AddProvider(typ reflect.Type, provider any) error

	// Get 按键解析，未找到返回 (nil, nil)
	Get(key Key) (any, error)
	// GetComponent 按类型解析
	GetComponent(typ reflect.Type) (any, error)
	// GetNamedComponent 按 (名称, 类型) 解析
	GetNamedComponent(name string, typ reflect.Type) (any, error)
	// HasComponent 本作用域或祖先作用域是否有该键的绑定
	HasComponent(key Key) bool
	// RemoveComponent 移除绑定及其缓存实例
	RemoveComponent(key Key) bool

	// Instantiate 创建 typ 的新实例并注入 `di` 字段，结果不缓存
	Instantiate(typ reflect.Type) (any, error)
	// Inject 为已存在的结构体指针注入 `di` 字段
	Inject(target any) error

	CreateChildContainer() (Container, error)
	// RemoveChildContainer 断开子容器但不释放它
	RemoveChildContainer(child Container) bool
	// Dispose 释放子容器与本作用域构造的实例，幂等
	Dispose()

	RegisterClass(name string, typ reflect.Type) error
	// GetClass 按名称查找类型并校验其满足 superType
	GetClass(name string, superType reflect.Type) (reflect.Type, error)

	// Verify 对作用域链上的所有绑定做静态循环检查
	Verify() error

	Parent() Container
	ID() string
	Name() string
}

// container 是具体的实现。
type container struct {
	id   string
	opts options

	mu          sync.RWMutex
	parent      *container
	children    []*container
	entries     map[Key]*entry
	classes     map[string]reflect.Type
	constructed []*entry // 构造顺序，释放时逆序

	disposed atomic.Bool
}

// NewContainer 创建一个新的根容器。
func NewContainer(opts ...Option) Container {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newContainer(nil, o)
}

func newContainer(parent *container, o options) *container {
	c := &container{
		id:      uuid.NewString(),
		opts:    o,
		parent:  parent,
		entries: make(map[Key]*entry),
		classes: make(map[string]reflect.Type),
	}
	c.opts.logger = o.logger.WithFields(logging.F("container", c.opts.name))
	metrics.ContainerCreated()
	return c
}

func (c *container) ID() string   { return c.id }
func (c *container) Name() string { return c.opts.name }

func (c *container) Parent() Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.parent == nil {
		return nil
	}
	return c.parent
}

func (c *container) AddComponent(key Key, impl any) error {
	b, err := newBinding(key, impl)
	if err != nil {
		return err
	}
	return c.register(key, b)
}

func (c *container) AddProvider(typ reflect.Type, provider any) error {
	key := Key{Type: typ}
	if typ == nil {
		return invalidBinding(key, "键类型为空")
	}
	b, err := newProviderBinding(key, provider)
	if err != nil {
		return err
	}
	return c.register(key, b)
}

// register 写入注册表，替换时丢弃旧的缓存实例（不释放，由调用方负责）
func (c *container) register(key Key, b *binding) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed.Load() {
		return ErrDisposed
	}

	if _, exists := c.entries[key]; exists {
		if c.opts.strict {
			return fmt.Errorf("%w: %s", ErrDuplicateRegistration, key)
		}
		c.dropLocked(key)
		c.opts.logger.Debug("替换绑定", logging.F("key", key), logging.F("kind", b.kind))
	}

	c.entries[key] = &entry{key: key, binding: b}
	return nil
}

func (c *container) RemoveComponent(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed.Load() {
		return false
	}
	return c.dropLocked(key)
}

func (c *container) dropLocked(key Key) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	for i, built := range c.constructed {
		if built == e {
			c.constructed = append(c.constructed[:i], c.constructed[i+1:]...)
			break
		}
	}
	return true
}

func (c *container) HasComponent(key Key) bool {
	for s := c; s != nil; s = s.parentScope() {
		if s.disposed.Load() {
			return false
		}
		s.mu.RLock()
		_, ok := s.entries[key]
		s.mu.RUnlock()
		if ok {
			return true
		}
	}
	return false
}

func (c *container) parentScope() *container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parent
}

func (c *container) Get(key Key) (any, error) {
	return c.resolve(key, nil)
}

func (c *container) GetComponent(typ reflect.Type) (any, error) {
	return c.resolve(Key{Type: typ}, nil)
}

func (c *container) GetNamedComponent(name string, typ reflect.Type) (any, error) {
	return c.resolve(Key{Type: typ, Name: name}, nil)
}

func (c *container) Instantiate(typ reflect.Type) (any, error) {
	return c.instantiateType(typ, nil)
}

func (c *container) Inject(target any) error {
	return c.injectInto(target, nil)
}

// resolve 沿作用域链查找，chain 是当前构造链
func (c *container) resolve(key Key, chain []frame) (any, error) {
	if c.disposed.Load() {
		return nil, ErrDisposed
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	parent := c.parent
	c.mu.RUnlock()

	if ok {
		return c.resolveEntry(e, chain)
	}
	if parent != nil {
		v, err := parent.resolve(key, chain)
		if err == nil && v != nil {
			metrics.RecordResolution(metrics.OutcomeParent)
		}
		return v, err
	}

	metrics.RecordResolution(metrics.OutcomeAbsent)
	return nil, nil
}
