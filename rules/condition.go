// Package rules 条件规则引擎。
//
// 条件以 id 组成有向图：组合条件只保存子条件的 id，
// 加载时做悬空引用与循环检查，求值结果按 id 缓存，变量变化时精确失效。
package rules

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gocrud/installkit/document"
	"github.com/gocrud/installkit/platform"
)

// Condition 条件节点
type Condition interface {
	ID() string
	SetID(id string)
	// ReadFrom 从文档元素读取参数；内联子条件通过 p 登记
	ReadFrom(el *document.Element, p Parser) error
	// IsTrue 求值，不返回错误，无法判断时为 false
	IsTrue(env Env) bool
	// Dependencies 静态依赖，用于循环检查与缓存失效
	Dependencies() Dependencies
}

// Dependencies 条件直接依赖的条件 id 与变量名
type Dependencies struct {
	Conditions []string `json:"conditions,omitempty"`
	Variables  []string `json:"variables,omitempty"`
}

// Uncacheable 由结果依赖变量之外状态的条件实现（如文件是否存在）
type Uncacheable interface {
	Uncacheable() bool
}

// Env 求值环境
type Env interface {
	// Variable 读取变量，同时记录为当前条件的观测依赖
	Variable(name string) (string, bool)
	// IsTrue 求值另一个条件，同时记录引用关系
	IsTrue(id string) bool
	// Substitute 展开文本中的变量引用
	Substitute(text string) string
	Platform() platform.Platform
}

// Parser 读取组合条件的操作数
type Parser interface {
	// Operand 登记内联子条件并返回它的 id；引用元素直接返回被引用的 id
	Operand(parent Condition, el *document.Element) (string, error)
}

// Base 提供 id 字段，自定义条件内嵌它即可
type Base struct {
	id string
}

func (b *Base) ID() string { return b.id }

func (b *Base) SetID(id string) { b.id = id }

var conditionType = reflect.TypeOf((*Condition)(nil)).Elem()

// requireParam 读取必填参数
func requireParam(el *document.Element, name string) (string, error) {
	v, _ := el.Param(name)
	if v = strings.TrimSpace(v); v == "" {
		return "", fmt.Errorf("missing parameter %q", name)
	}
	return v, nil
}

// param 读取可选参数
func param(el *document.Element, name string) string {
	v, _ := el.Param(name)
	return strings.TrimSpace(v)
}

// readOperands 读取组合条件的操作数：refid 属性（逗号分隔）与子 condition 元素
func readOperands(c Condition, el *document.Element, p Parser) ([]string, error) {
	var operands []string
	if refs := el.Attr("refid"); refs != "" {
		for _, ref := range strings.Split(refs, ",") {
			if ref = strings.TrimSpace(ref); ref != "" {
				operands = append(operands, ref)
			}
		}
	}
	for _, child := range el.ChildrenNamed("condition") {
		id, err := p.Operand(c, child)
		if err != nil {
			return nil, err
		}
		operands = append(operands, id)
	}
	return operands, nil
}
