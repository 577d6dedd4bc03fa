package document

import (
	"strings"
)

// Element 是条件文档的通用树节点，XML、YAML、JSON 都解析成同一种结构
type Element struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Children   []*Element        `json:"children,omitempty"`
	Content    string            `json:"content,omitempty"`
}

// NewElement 创建元素
func NewElement(name string) *Element {
	return &Element{Name: name, Attributes: make(map[string]string)}
}

// SetAttr 设置属性，返回自身便于链式构建
func (e *Element) SetAttr(name, value string) *Element {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[name] = value
	return e
}

// AddChild 追加子元素
func (e *Element) AddChild(child *Element) *Element {
	e.Children = append(e.Children, child)
	return e
}

// Attr 返回属性值，不存在时返回空串
func (e *Element) Attr(name string) string {
	return e.Attributes[name]
}

// LookupAttr 返回属性值及是否存在
func (e *Element) LookupAttr(name string) (string, bool) {
	v, ok := e.Attributes[name]
	return v, ok
}

// Param 读取参数：先查属性，再查同名子元素的文本
func (e *Element) Param(name string) (string, bool) {
	if v, ok := e.Attributes[name]; ok {
		return v, true
	}
	if child := e.FirstChild(name); child != nil {
		return child.Text(), true
	}
	return "", false
}

// FirstChild 返回第一个名为 name 的子元素
func (e *Element) FirstChild(name string) *Element {
	for _, child := range e.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// ChildrenNamed 返回所有名为 name 的子元素
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, child := range e.Children {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}

// Text 返回去掉首尾空白的文本内容
func (e *Element) Text() string {
	return strings.TrimSpace(e.Content)
}

// Clone 深拷贝
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := &Element{Name: e.Name, Content: e.Content}
	if e.Attributes != nil {
		out.Attributes = make(map[string]string, len(e.Attributes))
		for k, v := range e.Attributes {
			out.Attributes[k] = v
		}
	}
	for _, child := range e.Children {
		out.Children = append(out.Children, child.Clone())
	}
	return out
}
