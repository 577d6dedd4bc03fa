package di

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

// Key 是注册表的唯一键：类型，或 (名称, 类型) 对。
type Key struct {
	Type reflect.Type
	Name string
}

func (k Key) String() string {
	if k.Type == nil {
		return fmt.Sprintf("<nil>(name=%s)", k.Name)
	}
	if k.Name == "" {
		return k.Type.String()
	}
	return fmt.Sprintf("%s(name=%s)", k.Type, k.Name)
}

// KeyOf 返回类型 T 的键
func KeyOf[T any]() Key {
	return Key{Type: TypeOf[T]()}
}

// NamedKey 返回 (name, T) 键
func NamedKey[T any](name string) Key {
	return Key{Type: TypeOf[T](), Name: name}
}

// TypeOf 获取类型 T 的 reflect.Type（泛型辅助函数）
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// BindingKind 绑定种类
type BindingKind int

const (
	// BindingValue 已创建好的单例实例
	BindingValue BindingKind = iota
	// BindingType 按需实例化的实现类型，执行 `di` 标签字段注入
	BindingType
	// BindingFactory 参数由容器注入的构造函数
	BindingFactory
	// BindingProvider 延迟工厂：函数、带 Provide 方法的值或提供者类型
	BindingProvider
	// BindingAlias 转发到另一个键
	BindingAlias
)

func (k BindingKind) String() string {
	switch k {
	case BindingValue:
		return "value"
	case BindingType:
		return "type"
	case BindingFactory:
		return "factory"
	case BindingProvider:
		return "provider"
	case BindingAlias:
		return "alias"
	default:
		return "unknown"
	}
}

// FieldInjection 包含需要注入的结构体字段的元数据。
type FieldInjection struct {
	Index    int
	Name     string // 字段名
	Key      Key
	Optional bool
}

// InjectionSchema 包含预计算的注入元数据。
type InjectionSchema struct {
	Fields []FieldInjection // 用于结构体注入
	Args   []Key            // 用于函数/工厂注入
}

// dependencies 返回参与静态图检查的依赖，可选字段与容器参数除外
func (s *InjectionSchema) dependencies() []Key {
	if s == nil {
		return nil
	}
	var deps []Key
	for _, arg := range s.Args {
		if arg.Type != containerType {
			deps = append(deps, arg)
		}
	}
	for _, f := range s.Fields {
		if !f.Optional && f.Key.Type != containerType {
			deps = append(deps, f.Key)
		}
	}
	return deps
}

// binding 注册的构造配方
type binding struct {
	kind BindingKind

	value any // BindingValue

	implType  reflect.Type // BindingType / 提供者类型
	asPointer bool         // implType 为结构体但以指针形式满足键类型

	fn reflect.Value // BindingFactory / 函数提供者 / 提供者值的 Provide 方法

	providerType reflect.Type // 需要先注入再调用 Provide 的提供者类型
	provideArgs  []Key        // Provide 方法参数

	target Key // BindingAlias

	schema *InjectionSchema
}

// entry 绑定加上惰性填充的实例槽
type entry struct {
	key     Key
	binding *binding

	mu       sync.Mutex  // 用于创建此特定实例的锁
	done     atomic.Bool // instance 已写入
	instance any
}

func (e *entry) load() (any, bool) {
	if e.done.Load() {
		return e.instance, true
	}
	return nil, false
}

func (e *entry) store(v any) {
	e.instance = v
	e.done.Store(true)
}

var (
	errorType     = TypeOf[error]()
	containerType = TypeOf[Container]()
)

// newBinding 根据 impl 推断绑定种类
//
//	nil           -> 键类型本身作为实现类型
//	reflect.Type  -> 实现类型
//	Key           -> 别名
//	func          -> 工厂，第一个返回值必须可赋值给键类型，可选尾随 error
//	其他          -> 值
func newBinding(key Key, impl any) (*binding, error) {
	if key.Type == nil {
		return nil, invalidBinding(key, "键类型为空")
	}

	switch v := impl.(type) {
	case nil:
		return newTypeBinding(key, key.Type)
	case reflect.Type:
		return newTypeBinding(key, v)
	case Key:
		if v == key {
			return nil, invalidBinding(key, "别名指向自身")
		}
		if v.Type == nil || !v.Type.AssignableTo(key.Type) {
			return nil, invalidBinding(key, "别名目标 %s 不可赋值", v)
		}
		return &binding{kind: BindingAlias, target: v}, nil
	}

	implType := reflect.TypeOf(impl)
	if implType.Kind() == reflect.Func && key.Type.Kind() != reflect.Func {
		fn := reflect.ValueOf(impl)
		schema, err := analyzeFunction(key, implType, key.Type)
		if err != nil {
			return nil, err
		}
		return &binding{kind: BindingFactory, fn: fn, schema: schema}, nil
	}

	if !implType.AssignableTo(key.Type) {
		return nil, invalidBinding(key, "值类型 %s 不可赋值", implType)
	}
	return &binding{kind: BindingValue, value: impl}, nil
}

func newTypeBinding(key Key, implType reflect.Type) (*binding, error) {
	b := &binding{kind: BindingType, implType: implType}

	switch {
	case implType.AssignableTo(key.Type) && isStructLike(implType):
	case implType.Kind() == reflect.Struct && reflect.PointerTo(implType).AssignableTo(key.Type):
		b.asPointer = true
	default:
		return nil, invalidBinding(key, "实现类型 %s 无法实例化为 %s", implType, key.Type)
	}

	schema, err := analyzeStruct(key, implType)
	if err != nil {
		return nil, err
	}
	b.schema = schema
	return b, nil
}

// newProviderBinding 支持三种提供者：
// 函数、带 Provide 方法的值、带 Provide 方法的提供者类型（先注入字段再调用）
func newProviderBinding(key Key, provider any) (*binding, error) {
	if provider == nil {
		return nil, invalidBinding(key, "提供者为空")
	}

	if typ, ok := provider.(reflect.Type); ok {
		if !isStructLike(typ) {
			return nil, invalidBinding(key, "提供者类型 %s 不是结构体", typ)
		}
		ptr := typ
		if ptr.Kind() != reflect.Pointer {
			ptr = reflect.PointerTo(typ)
		}
		method, ok := ptr.MethodByName("Provide")
		if !ok {
			return nil, invalidBinding(key, "提供者类型 %s 没有 Provide 方法", typ)
		}
		// 方法表达式的第一个参数是接收者
		args, err := analyzeSignature(key, method.Type, key.Type, 1)
		if err != nil {
			return nil, err
		}
		schema, err := analyzeStruct(key, typ)
		if err != nil {
			return nil, err
		}
		return &binding{
			kind:         BindingProvider,
			providerType: typ,
			provideArgs:  args,
			schema:       schema,
		}, nil
	}

	val := reflect.ValueOf(provider)
	if val.Kind() == reflect.Func {
		schema, err := analyzeFunction(key, val.Type(), key.Type)
		if err != nil {
			return nil, err
		}
		return &binding{kind: BindingProvider, fn: val, schema: schema}, nil
	}

	method := val.MethodByName("Provide")
	if !method.IsValid() {
		return nil, invalidBinding(key, "%T 既不是函数也没有 Provide 方法", provider)
	}
	schema, err := analyzeFunction(key, method.Type(), key.Type)
	if err != nil {
		return nil, err
	}
	return &binding{kind: BindingProvider, fn: method, schema: schema}, nil
}

func isStructLike(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

func analyzeFunction(key Key, fnType reflect.Type, want reflect.Type) (*InjectionSchema, error) {
	args, err := analyzeSignature(key, fnType, want, 0)
	if err != nil {
		return nil, err
	}
	return &InjectionSchema{Args: args}, nil
}

// analyzeSignature 校验返回值并把参数转为键，skip 跳过前几个参数（方法接收者）
func analyzeSignature(key Key, fnType reflect.Type, want reflect.Type, skip int) ([]Key, error) {
	switch fnType.NumOut() {
	case 1:
	case 2:
		if fnType.Out(1) != errorType {
			return nil, invalidBinding(key, "第二个返回值必须是 error")
		}
	default:
		return nil, invalidBinding(key, "函数必须返回 (T) 或 (T, error)")
	}
	if out := fnType.Out(0); !out.AssignableTo(want) {
		return nil, invalidBinding(key, "返回类型 %s 不可赋值给 %s", out, want)
	}
	if fnType.IsVariadic() {
		return nil, invalidBinding(key, "不支持可变参数函数")
	}

	args := make([]Key, 0, fnType.NumIn()-skip)
	for i := skip; i < fnType.NumIn(); i++ {
		args = append(args, Key{Type: fnType.In(i)})
	}
	return args, nil
}

// analyzeStruct 解析带 `di` 标签的字段
//
//	`di:""`               按类型注入
//	`di:"name"`           按 (name, 类型) 注入
//	`di:"?"`              可选
//	`di:"name,optional"`  命名且可选
func analyzeStruct(key Key, typ reflect.Type) (*InjectionSchema, error) {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	schema := &InjectionSchema{}
	if typ.Kind() != reflect.Struct {
		return schema, nil
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tagValue, hasTag := field.Tag.Lookup("di")
		if !hasTag {
			continue
		}
		if !field.IsExported() {
			return nil, invalidBinding(key, "字段 %s 未导出，无法注入", field.Name)
		}

		parts := strings.Split(tagValue, ",")
		name := strings.TrimSpace(parts[0])
		optional := false
		if name == "?" || name == "optional" {
			name = ""
			optional = true
		}
		for _, part := range parts[1:] {
			part = strings.TrimSpace(part)
			if part == "optional" || part == "?" {
				optional = true
			}
		}

		schema.Fields = append(schema.Fields, FieldInjection{
			Index:    i,
			Name:     field.Name,
			Key:      Key{Type: field.Type, Name: name},
			Optional: optional,
		})
	}
	return schema, nil
}
