package di

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrResolution 绑定存在但构造失败
	ErrResolution = errors.New("di: 组件解析失败")
	// ErrCyclicDependency 构造链中再次请求了同一作用域的同一个键
	ErrCyclicDependency = errors.New("di: 检测到循环依赖")
	// ErrDuplicateRegistration 严格模式下重复注册
	ErrDuplicateRegistration = errors.New("di: 重复注册")
	// ErrClassNotFound 类型注册表中没有该名称
	ErrClassNotFound = errors.New("di: 未找到类型")
	// ErrTypeMismatch 类型不满足要求的父类型
	ErrTypeMismatch = errors.New("di: 类型不匹配")
	// ErrInvalidBinding 注册时绑定与键不兼容
	ErrInvalidBinding = errors.New("di: 无效的绑定")
	// ErrDisposed 容器已释放
	ErrDisposed = errors.New("di: 容器已释放")
)

// ResolutionError 包装构造过程中的原始错误
type ResolutionError struct {
	Key Key
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("di: 解析 %s 失败: %v", e.Key, e.Err)
}

// Unwrap 同时暴露 ErrResolution 与原始错误，errors.Is 对两者都成立
func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Err}
}

// CyclicDependencyError 携带完整的构造链，最后一个元素与链中某个元素相同
type CyclicDependencyError struct {
	Chain []Key
}

func (e *CyclicDependencyError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, k := range e.Chain {
		parts[i] = k.String()
	}
	return fmt.Sprintf("%v: %s", ErrCyclicDependency, strings.Join(parts, " -> "))
}

func (e *CyclicDependencyError) Unwrap() error {
	return ErrCyclicDependency
}

func invalidBinding(key Key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidBinding, key, fmt.Sprintf(format, args...))
}
