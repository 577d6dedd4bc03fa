package di

import (
	"fmt"
	"reflect"
)

// Add 以类型 T 为键注册 impl。
//
// 支持的 impl:
//  1. nil                          -> T 本身（或 T 指向的结构体）按需实例化并注入 `di` 字段
//  2. reflect.Type                 -> 实现类型
//  3. func(...) (T, error?)        -> 工厂，参数由容器注入
//  4. Key                          -> 别名
//  5. 其他                         -> 已创建的单例值
//
// 工厂需要在构造中解析其他组件时，应声明 Container 参数使用注入的解析视图。
// 闭包捕获外层容器同样可用，同一 goroutine 上的循环会返回 CyclicDependencyError；
// 但在工厂内另起 goroutine 解析正在构造的键会一直等待构造结束。
func Add[T any](c Container, impl any) error {
	return c.AddComponent(KeyOf[T](), impl)
}

// AddNamed 以 (name, T) 为键注册 impl
func AddNamed[T any](c Container, name string, impl any) error {
	return c.AddComponent(NamedKey[T](name), impl)
}

// AddToken 以 Token 为键注册 impl
func AddToken[T any](c Container, token Token[T], impl any) error {
	return c.AddComponent(token.Key(), impl)
}

// AddProvider 为类型 T 注册延迟工厂
func AddProvider[T any](c Container, provider any) error {
	return c.AddProvider(TypeOf[T](), provider)
}

// AddProviderType 为类型 T 注册提供者类型 P：P 先被实例化并注入，再调用其 Provide 方法
func AddProviderType[T any, P any](c Container) error {
	return c.AddProvider(TypeOf[T](), TypeOf[P]())
}

// Resolve 解析类型 T，未注册时返回零值和 nil
func Resolve[T any](c Container) (T, error) {
	return resolveKey[T](c, KeyOf[T]())
}

// ResolveNamed 解析 (name, T)
func ResolveNamed[T any](c Container, name string) (T, error) {
	return resolveKey[T](c, NamedKey[T](name))
}

// ResolveToken 按 Token 解析
func ResolveToken[T any](c Container, token Token[T]) (T, error) {
	return resolveKey[T](c, token.Key())
}

// MustResolve 解析类型 T，失败或未注册时 panic
func MustResolve[T any](c Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	if isZero(v) {
		panic(fmt.Sprintf("di: 未找到服务 %v", TypeOf[T]()))
	}
	return v
}

// RegisterClass 以名称登记类型 T
func RegisterClass[T any](c Container, name string) error {
	return c.RegisterClass(name, TypeOf[T]())
}

// New 按名称查找类型，校验其实现 T，然后由容器实例化并注入
func New[T any](c Container, className string) (T, error) {
	var zero T
	typ, err := c.GetClass(className, TypeOf[T]())
	if err != nil {
		return zero, err
	}
	if typ.Kind() == reflect.Struct && !typ.AssignableTo(TypeOf[T]()) {
		typ = reflect.PointerTo(typ)
	}
	v, err := c.Instantiate(typ)
	if err != nil {
		return zero, err
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	return zero, fmt.Errorf("%w: %T 不是 %v", ErrTypeMismatch, v, TypeOf[T]())
}

func resolveKey[T any](c Container, key Key) (T, error) {
	var zero T
	val, err := c.Get(key)
	if err != nil {
		return zero, err
	}
	if val == nil {
		return zero, nil
	}

	if v, ok := val.(T); ok {
		return v, nil
	}
	return zero, fmt.Errorf("%w: 解析到 %T，期望 %v", ErrTypeMismatch, val, key.Type)
}

func isZero[T any](v T) bool {
	rv := reflect.ValueOf(&v).Elem()
	return rv.IsZero()
}
