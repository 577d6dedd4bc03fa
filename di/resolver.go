package di

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/metrics"
)

// frame 构造链中的一个节点：在哪个作用域构造哪个键
type frame struct {
	scope *container
	key   Key
}

func chainKeys(chain []frame) []Key {
	keys := make([]Key, len(chain))
	for i, f := range chain {
		keys[i] = f.key
	}
	return keys
}

// boundContainer 是绑定到一次解析的容器视图。
// 需要容器的工厂声明 Container 参数即可拿到它，通过它发起的解析沿用同一条构造链。
type boundContainer struct {
	*container
	chain []frame
}

func (b *boundContainer) Get(key Key) (any, error) {
	return b.container.resolve(key, b.chain)
}

func (b *boundContainer) GetComponent(typ reflect.Type) (any, error) {
	return b.container.resolve(Key{Type: typ}, b.chain)
}

func (b *boundContainer) GetNamedComponent(name string, typ reflect.Type) (any, error) {
	return b.container.resolve(Key{Type: typ, Name: name}, b.chain)
}

func (b *boundContainer) Instantiate(typ reflect.Type) (any, error) {
	return b.container.instantiateType(typ, b.chain)
}

func (b *boundContainer) Inject(target any) error {
	return b.container.injectInto(target, b.chain)
}

// resolveEntry 返回缓存实例，或在条目锁内构造一次
func (c *container) resolveEntry(e *entry, chain []frame) (any, error) {
	switch e.binding.kind {
	case BindingValue:
		metrics.RecordResolution(metrics.OutcomeCached)
		return e.binding.value, nil
	case BindingAlias:
		if err := c.checkCycle(e.key, chain); err != nil {
			return nil, err
		}
		return c.resolve(e.binding.target, appendFrame(chain, c, e.key))
	}

	// 快速路径：检查是否已创建
	if v, ok := e.load(); ok {
		metrics.RecordResolution(metrics.OutcomeCached)
		return v, nil
	}

	// 直接通过容器发起的解析没有构造链，取本 goroutine 上正在进行的那条
	gid := goroutineID()
	if chain == nil && gid != 0 {
		chain = constructions.current(gid)
	}

	// 在加锁之前检查，同一 goroutine 重入时持有锁会死锁
	if err := c.checkCycle(e.key, chain); err != nil {
		return nil, err
	}

	// 慢速路径：带锁创建
	e.mu.Lock()
	defer e.mu.Unlock()

	// 双重检查
	if v, ok := e.load(); ok {
		metrics.RecordResolution(metrics.OutcomeCached)
		return v, nil
	}

	next := appendFrame(chain, c, e.key)
	restore := func() {}
	if gid != 0 {
		restore = constructions.push(gid, next)
	}
	start := time.Now()
	v, err := c.construct(e.binding, e.key, next)
	restore()
	if err != nil {
		metrics.RecordResolution(metrics.OutcomeFailed)
		var cyclic *CyclicDependencyError
		if errors.As(err, &cyclic) {
			return nil, cyclic
		}
		c.opts.logger.Error("构造组件失败", logging.F("key", e.key), logging.F("error", err))
		return nil, &ResolutionError{Key: e.key, Err: err}
	}
	metrics.ObserveConstruction(time.Since(start))

	c.mu.Lock()
	if c.disposed.Load() {
		c.mu.Unlock()
		if derr := disposeInstance(v); derr != nil {
			c.opts.logger.Warn("释放组件失败", logging.F("key", e.key), logging.F("error", derr))
		}
		return nil, ErrDisposed
	}
	e.store(v)
	// 条目可能在构造期间被替换或移除，此时实例不归本作用域管理
	if c.entries[e.key] == e {
		c.constructed = append(c.constructed, e)
	}
	c.mu.Unlock()

	metrics.RecordResolution(metrics.OutcomeConstructed)
	c.opts.logger.Debug("组件已构造", logging.F("key", e.key), logging.F("kind", e.binding.kind))
	return v, nil
}

func (c *container) checkCycle(key Key, chain []frame) error {
	for i, f := range chain {
		if f.scope == c && f.key == key {
			keys := chainKeys(chain[i:])
			return &CyclicDependencyError{Chain: append(keys, key)}
		}
	}
	return nil
}

func appendFrame(chain []frame, scope *container, key Key) []frame {
	next := make([]frame, len(chain), len(chain)+1)
	copy(next, chain)
	return append(next, frame{scope: scope, key: key})
}

// construct 按绑定种类创建实例，panic 转为错误
func (c *container) construct(b *binding, key Key, chain []frame) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("构造时 panic: %v", r)
		}
	}()

	switch b.kind {
	case BindingType:
		return c.createStruct(b.implType, b.asPointer, b.schema, chain)
	case BindingFactory:
		return c.invokeFunction(b.fn, b.schema.Args, chain)
	case BindingProvider:
		if b.providerType == nil {
			return c.invokeFunction(b.fn, b.schema.Args, chain)
		}
		provider, err := c.createStruct(b.providerType, b.providerType.Kind() == reflect.Struct, b.schema, chain)
		if err != nil {
			return nil, fmt.Errorf("创建提供者 %s: %w", b.providerType, err)
		}
		method := reflect.ValueOf(provider).MethodByName("Provide")
		return c.invokeFunction(method, b.provideArgs, chain)
	}
	return nil, fmt.Errorf("未知绑定种类 %v", b.kind)
}

// dependency 解析一个依赖键，Container 类型注入当前的解析视图
func (c *container) dependency(key Key, chain []frame) (any, error) {
	if key.Type == containerType && key.Name == "" {
		return &boundContainer{container: c, chain: chain}, nil
	}
	return c.resolve(key, chain)
}

// createStruct 实例化结构体并注入标记为 `di` 的字段。
// implType 为指针类型或 asPointer 为真时返回指针。
func (c *container) createStruct(implType reflect.Type, asPointer bool, schema *InjectionSchema, chain []frame) (any, error) {
	var val reflect.Value
	if implType.Kind() == reflect.Pointer {
		val = reflect.New(implType.Elem())
	} else {
		val = reflect.New(implType)
	}

	if err := c.injectFields(val.Elem(), schema, chain); err != nil {
		return nil, err
	}

	if implType.Kind() == reflect.Pointer || asPointer {
		return val.Interface(), nil
	}
	return val.Elem().Interface(), nil
}

func (c *container) injectFields(structVal reflect.Value, schema *InjectionSchema, chain []frame) error {
	for _, field := range schema.Fields {
		dep, err := c.dependency(field.Key, chain)
		if err != nil {
			return fmt.Errorf("字段 %s: %w", field.Name, err)
		}
		if dep == nil {
			if field.Optional {
				continue
			}
			return fmt.Errorf("字段 %s: 未满足的依赖 %s", field.Name, field.Key)
		}

		depVal := reflect.ValueOf(dep)
		target := structVal.Field(field.Index)
		if !depVal.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("字段 %s: %w: %s 不可赋值给 %s", field.Name, ErrTypeMismatch, depVal.Type(), target.Type())
		}
		target.Set(depVal)
	}
	return nil
}

func (c *container) instantiateType(typ reflect.Type, chain []frame) (any, error) {
	if c.disposed.Load() {
		return nil, ErrDisposed
	}
	key := Key{Type: typ}
	if typ == nil || !isStructLike(typ) {
		return nil, invalidBinding(key, "只能实例化结构体类型")
	}
	schema, err := analyzeStruct(key, typ)
	if err != nil {
		return nil, err
	}
	v, err := c.createStruct(typ, false, schema, chain)
	if err != nil {
		return nil, &ResolutionError{Key: key, Err: err}
	}
	return v, nil
}

func (c *container) injectInto(target any, chain []frame) error {
	if c.disposed.Load() {
		return ErrDisposed
	}
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Pointer || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: Inject 需要非空结构体指针，得到 %T", ErrInvalidBinding, target)
	}
	key := Key{Type: val.Type()}
	schema, err := analyzeStruct(key, val.Type())
	if err != nil {
		return err
	}
	if err := c.injectFields(val.Elem(), schema, chain); err != nil {
		return &ResolutionError{Key: key, Err: err}
	}
	return nil
}
