package di

import (
	"fmt"
	"reflect"
)

// RegisterClass 在本作用域登记一个可按名称实例化的类型
func (c *container) RegisterClass(name string, typ reflect.Type) error {
	if name == "" || typ == nil {
		return fmt.Errorf("%w: 类型名称与类型不能为空", ErrInvalidBinding)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed.Load() {
		return ErrDisposed
	}
	if existing, ok := c.classes[name]; ok && existing != typ && c.opts.strict {
		return fmt.Errorf("%w: 类型 %s", ErrDuplicateRegistration, name)
	}
	c.classes[name] = typ
	return nil
}

// GetClass 沿作用域链查找名称对应的类型，并校验它满足 superType。
// superType 为接口时，类型本身或其指针实现该接口即可。
func (c *container) GetClass(name string, superType reflect.Type) (reflect.Type, error) {
	if c.disposed.Load() {
		return nil, ErrDisposed
	}

	var typ reflect.Type
	for s := c; s != nil && typ == nil; s = s.parentScope() {
		s.mu.RLock()
		typ = s.classes[name]
		s.mu.RUnlock()
	}
	if typ == nil {
		return nil, fmt.Errorf("%w: %s", ErrClassNotFound, name)
	}

	if superType != nil && !satisfies(typ, superType) {
		return nil, fmt.Errorf("%w: %s (%s) 不满足 %s", ErrTypeMismatch, name, typ, superType)
	}
	return typ, nil
}

func satisfies(typ, superType reflect.Type) bool {
	if typ.AssignableTo(superType) {
		return true
	}
	if superType.Kind() == reflect.Interface && typ.Kind() != reflect.Pointer {
		return reflect.PointerTo(typ).Implements(superType)
	}
	return false
}
