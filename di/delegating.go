package di

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Delegating 在第一次使用时才创建后备容器，之后的所有操作都转发给它。
// 这样依赖它的子系统可以在后备容器就绪之前完成装配。
type Delegating struct {
	factory func() (Container, error)

	once    sync.Once
	created atomic.Bool
	backing Container
	err     error
}

var _ Container = (*Delegating)(nil)

// NewDelegating 创建委托容器，factory 最多被调用一次
func NewDelegating(factory func() (Container, error)) *Delegating {
	return &Delegating{factory: factory}
}

// Container 返回后备容器，首次调用时创建
func (d *Delegating) Container() (Container, error) {
	d.once.Do(func() {
		d.backing, d.err = d.factory()
		if d.err == nil && d.backing == nil {
			d.err = ErrDisposed
		}
		if d.err == nil {
			d.created.Store(true)
		}
	})
	return d.backing, d.err
}

// Resolved 返回已创建的后备容器，不触发创建
func (d *Delegating) Resolved() (Container, bool) {
	if !d.created.Load() {
		return nil, false
	}
	return d.backing, true
}

func (d *Delegating) AddComponent(key Key, impl any) error {
	c, err := d.Container()
	if err != nil {
		return err
	}
	return c.AddComponent(key, impl)
}

func (d *Delegating) AddProvider(typ reflect.Type, provider any) error {
	c, err := d.Container()
	if err != nil {
		return err
	}
	return c.AddProvider(typ, provider)
}

func (d *Delegating) Get(key Key) (any, error) {
	c, err := d.Container()
	if err != nil {
		return nil, err
	}
	return c.Get(key)
}

func (d *Delegating) GetComponent(typ reflect.Type) (any, error) {
	c, err := d.Container()
	if err != nil {
		return nil, err
	}
	return c.GetComponent(typ)
}

func (d *Delegating) GetNamedComponent(name string, typ reflect.Type) (any, error) {
	c, err := d.Container()
	if err != nil {
		return nil, err
	}
	return c.GetNamedComponent(name, typ)
}

func (d *Delegating) HasComponent(key Key) bool {
	c, err := d.Container()
	if err != nil {
		return false
	}
	return c.HasComponent(key)
}

func (d *Delegating) RemoveComponent(key Key) bool {
	c, err := d.Container()
	if err != nil {
		return false
	}
	return c.RemoveComponent(key)
}

func (d *Delegating) Instantiate(typ reflect.Type) (any, error) {
	c, err := d.Container()
	if err != nil {
		return nil, err
	}
	return c.Instantiate(typ)
}

func (d *Delegating) Inject(target any) error {
	c, err := d.Container()
	if err != nil {
		return err
	}
	return c.Inject(target)
}

func (d *Delegating) CreateChildContainer() (Container, error) {
	c, err := d.Container()
	if err != nil {
		return nil, err
	}
	return c.CreateChildContainer()
}

func (d *Delegating) RemoveChildContainer(child Container) bool {
	c, err := d.Container()
	if err != nil {
		return false
	}
	return c.RemoveChildContainer(child)
}

// Dispose 释放后备容器；从未使用过时不会创建它，之后的使用返回 ErrDisposed
func (d *Delegating) Dispose() {
	// 未创建时占用 once，之后的 Container() 直接返回 ErrDisposed
	d.once.Do(func() {
		d.err = ErrDisposed
	})
	if c, ok := d.Resolved(); ok {
		c.Dispose()
	}
}

func (d *Delegating) RegisterClass(name string, typ reflect.Type) error {
	c, err := d.Container()
	if err != nil {
		return err
	}
	return c.RegisterClass(name, typ)
}

func (d *Delegating) GetClass(name string, superType reflect.Type) (reflect.Type, error) {
	c, err := d.Container()
	if err != nil {
		return nil, err
	}
	return c.GetClass(name, superType)
}

func (d *Delegating) Verify() error {
	c, err := d.Container()
	if err != nil {
		return err
	}
	return c.Verify()
}

func (d *Delegating) Parent() Container {
	c, err := d.Container()
	if err != nil {
		return nil
	}
	return c.Parent()
}

func (d *Delegating) ID() string {
	c, err := d.Container()
	if err != nil {
		return ""
	}
	return c.ID()
}

func (d *Delegating) Name() string {
	c, err := d.Container()
	if err != nil {
		return ""
	}
	return c.Name()
}
