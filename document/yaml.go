package document

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// TextKey 映射中该键的标量值写入元素的 Content
const TextKey = "_text"

// ParseYAML 把 YAML 文档解析为元素树。
//
// 映射规则：
//   - 标量值成为属性
//   - 映射值成为同名子元素
//   - 键 K 下的序列，每一项成为名为 K 的子元素（标量项写入 Content）
//   - 顶层映射只有一个键且值为映射时，该键作为根元素名称
func ParseYAML(data []byte) (*Element, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: 文档为空", ErrSyntax)
	}

	top := doc.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: 顶层必须是映射", ErrSyntax)
	}

	if len(top.Content) == 2 && top.Content[1].Kind == yaml.MappingNode {
		return fromMapping(top.Content[0].Value, top.Content[1])
	}
	return fromMapping("", top)
}

func fromMapping(name string, node *yaml.Node) (*Element, error) {
	el := NewElement(name)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]

		switch value.Kind {
		case yaml.ScalarNode:
			if key == TextKey {
				el.Content = value.Value
			} else {
				el.Attributes[key] = value.Value
			}
		case yaml.MappingNode:
			child, err := fromMapping(key, value)
			if err != nil {
				return nil, err
			}
			el.AddChild(child)
		case yaml.SequenceNode:
			for _, item := range value.Content {
				child, err := fromItem(key, item)
				if err != nil {
					return nil, err
				}
				el.AddChild(child)
			}
		case yaml.AliasNode:
			if value.Alias == nil || value.Alias.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%w: 只支持映射别名 (%s)", ErrSyntax, key)
			}
			child, err := fromMapping(key, value.Alias)
			if err != nil {
				return nil, err
			}
			el.AddChild(child)
		}
	}
	return el, nil
}

func fromItem(name string, item *yaml.Node) (*Element, error) {
	switch item.Kind {
	case yaml.ScalarNode:
		el := NewElement(name)
		el.Content = item.Value
		return el, nil
	case yaml.MappingNode:
		return fromMapping(name, item)
	case yaml.AliasNode:
		if item.Alias != nil {
			return fromItem(name, item.Alias)
		}
	}
	return nil, fmt.Errorf("%w: %s 下不支持嵌套序列 (行 %d)", ErrSyntax, name, item.Line)
}

// ParseOption JSON 解析选项
type ParseOption func(*parseOptions)

type parseOptions struct {
	schema string
}

// WithSchema 解析前用 JSON Schema 校验
func WithSchema(schema string) ParseOption {
	return func(o *parseOptions) {
		o.schema = schema
	}
}

// ParseJSON 把 JSON 文档解析为元素树，规则与 ParseYAML 相同
func ParseJSON(data []byte, opts ...ParseOption) (*Element, error) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.schema != "" {
		if err := ValidateJSON(data, o.schema); err != nil {
			return nil, err
		}
	}
	return ParseYAML(data)
}

// ValidateJSON 用 JSON Schema 校验文档
func ValidateJSON(data []byte, schema string) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
	}
	return nil
}

// Parse 按文件扩展名选择解析器
func Parse(name string, data []byte, opts ...ParseOption) (*Element, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml":
		return ParseXMLBytes(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data, opts...)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}
