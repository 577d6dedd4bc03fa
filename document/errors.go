package document

import "errors"

var (
	// ErrSyntax 文档无法解析
	ErrSyntax = errors.New("document: 语法错误")
	// ErrSchema 文档不满足 JSON Schema
	ErrSchema = errors.New("document: 不满足 schema")
	// ErrUnsupportedFormat 无法识别的文档格式
	ErrUnsupportedFormat = errors.New("document: 不支持的格式")
)
