package document

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// ParseXML 把 XML 文档解析为元素树，命名空间前缀被忽略
func ParseXML(r io.Reader) (*Element, error) {
	decoder := xml.NewDecoder(r)

	var root *Element
	var stack []*Element

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := NewElement(t.Name.Local)
			for _, attr := range t.Attr {
				el.Attributes[attr.Name.Local] = attr.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: 存在多个根元素", ErrSyntax)
				}
				root = el
			} else {
				stack[len(stack)-1].AddChild(el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Content += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: 文档为空", ErrSyntax)
	}
	return root, nil
}

// ParseXMLBytes 是 ParseXML 的字节版本
func ParseXMLBytes(data []byte) (*Element, error) {
	return ParseXML(bytes.NewReader(data))
}
