package rules

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedCondition 条件定义有误（未知类型、缺少参数、悬空引用等）
	ErrMalformedCondition = errors.New("rules: malformed condition")
	// ErrCyclicCondition 条件之间存在循环引用
	ErrCyclicCondition = errors.New("rules: cyclic condition definition")
)

// MalformedConditionError 带条件 id 的定义错误
type MalformedConditionError struct {
	ID  string
	Err error
}

func (e *MalformedConditionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%v: %v", ErrMalformedCondition, e.Err)
	}
	return fmt.Sprintf("%v: condition %q: %v", ErrMalformedCondition, e.ID, e.Err)
}

func (e *MalformedConditionError) Unwrap() []error {
	return []error{ErrMalformedCondition, e.Err}
}

func malformed(id string, format string, args ...any) error {
	return &MalformedConditionError{ID: id, Err: fmt.Errorf(format, args...)}
}

// CyclicConditionError 循环链，首尾为同一个 id
type CyclicConditionError struct {
	Chain []string
}

func (e *CyclicConditionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCyclicCondition, strings.Join(e.Chain, " -> "))
}

func (e *CyclicConditionError) Is(target error) bool {
	return target == ErrCyclicCondition
}
