package di

import (
	"fmt"
)

// Token 表示一个带类型的命名键，用于区分相同类型的不同依赖
//
// 使用场景：
//   - 需要注册多个相同类型但用途不同的实例（如多个资源目录）
//   - 配置值（如字符串、整数等基本类型）
//
// 示例：
//
//	var InstallPath = di.NewToken[string]("install-path")
//
//	_ = di.AddToken(c, InstallPath, "/opt/app")
//	path, _ := di.ResolveToken(c, InstallPath)
type Token[T any] struct {
	name string
}

// NewToken 创建一个新的 Token
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name 返回 Token 的名称
func (t Token[T]) Name() string {
	return t.name
}

// Key 返回 Token 对应的注册键
func (t Token[T]) Key() Key {
	return NamedKey[T](t.name)
}

func (t Token[T]) String() string {
	return fmt.Sprintf("Token[%s](%s)", TypeOf[T](), t.name)
}
