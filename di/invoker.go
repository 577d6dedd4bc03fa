package di

import (
	"fmt"
	"reflect"
)

// invokeFunction 调用工厂或提供者函数。
// 参数按预计算的键注入，返回 (T) 或 (T, error)。
func (c *container) invokeFunction(fn reflect.Value, argKeys []Key, chain []frame) (any, error) {
	args := make([]reflect.Value, len(argKeys))
	for i, key := range argKeys {
		dep, err := c.dependency(key, chain)
		if err != nil {
			return nil, fmt.Errorf("参数 %d: %w", i, err)
		}
		if dep == nil {
			return nil, fmt.Errorf("参数 %d: 未满足的依赖 %s", i, key)
		}
		depVal := reflect.ValueOf(dep)
		if !depVal.Type().AssignableTo(key.Type) {
			return nil, fmt.Errorf("参数 %d: %w: %s 不可赋值给 %s", i, ErrTypeMismatch, depVal.Type(), key.Type)
		}
		args[i] = depVal
	}

	results := fn.Call(args)
	if len(results) == 0 {
		return nil, fmt.Errorf("工厂没有返回值")
	}

	// 检查 error
	if len(results) > 1 {
		if last := results[len(results)-1]; !last.IsNil() {
			return nil, last.Interface().(error)
		}
	}

	// 检查 nil
	first := results[0]
	switch first.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if first.IsNil() {
			return nil, fmt.Errorf("工厂返回了 nil 实例")
		}
	}
	return first.Interface(), nil
}
