package rules

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/gocrud/installkit/document"
)

// 内置条件类型名称
const (
	TypeVariable        = "variable"
	TypeExists          = "exists"
	TypeMatches         = "matches"
	TypeCompareNumerics = "compareNumerics"
	TypeCompareVersions = "compareVersions"
	TypeContains        = "contains"
	TypeEmpty           = "empty"
	TypeRef             = "ref"
	TypeNot             = "not"
	TypeAnd             = "and"
	TypeOr              = "or"
	TypeXor             = "xor"
	TypePlatform        = "platform"
)

var builtins = map[string]func() Condition{
	TypeVariable:        func() Condition { return &VariableCondition{} },
	TypeExists:          func() Condition { return &ExistsCondition{} },
	TypeMatches:         func() Condition { return &MatchesCondition{} },
	TypeCompareNumerics: func() Condition { return &CompareNumericsCondition{} },
	TypeCompareVersions: func() Condition { return &CompareVersionsCondition{} },
	TypeContains:        func() Condition { return &ContainsCondition{} },
	TypeEmpty:           func() Condition { return &EmptyCondition{} },
	TypeRef:             func() Condition { return &RefCondition{} },
	TypeNot:             func() Condition { return &NotCondition{} },
	TypeAnd:             func() Condition { return &AndCondition{} },
	TypeOr:              func() Condition { return &OrCondition{} },
	TypeXor:             func() Condition { return &XorCondition{} },
	TypePlatform:        func() Condition { return &PlatformCondition{} },
}

// validator 由需要在加载时校验参数的条件实现，两种加载路径都会调用
type validator interface {
	Validate() error
}

// VariableCondition 变量等于给定值
type VariableCondition struct {
	Base
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (c *VariableCondition) ReadFrom(el *document.Element, _ Parser) (err error) {
	if c.Name, err = requireParam(el, "name"); err != nil {
		return err
	}
	c.Value, _ = el.Param("value")
	return nil
}

func (c *VariableCondition) IsTrue(env Env) bool {
	v, ok := env.Variable(c.Name)
	return ok && v == c.Value
}

func (c *VariableCondition) Dependencies() Dependencies {
	return Dependencies{Variables: []string{c.Name}}
}

// ExistsCondition 变量已设置，或文件存在
type ExistsCondition struct {
	Base
	Variable string `json:"variable,omitempty"`
	File     string `json:"file,omitempty"`
}

func (c *ExistsCondition) ReadFrom(el *document.Element, _ Parser) error {
	c.Variable = param(el, "variable")
	c.File = param(el, "file")
	return c.Validate()
}

func (c *ExistsCondition) Validate() error {
	if (c.Variable == "") == (c.File == "") {
		return fmt.Errorf("exactly one of %q or %q is required", "variable", "file")
	}
	return nil
}

func (c *ExistsCondition) IsTrue(env Env) bool {
	if c.File != "" {
		_, err := os.Stat(env.Substitute(c.File))
		return err == nil
	}
	_, ok := env.Variable(c.Variable)
	return ok
}

func (c *ExistsCondition) Dependencies() Dependencies {
	if c.Variable == "" {
		return Dependencies{}
	}
	return Dependencies{Variables: []string{c.Variable}}
}

// Uncacheable 文件状态不受变量存储管理
func (c *ExistsCondition) Uncacheable() bool { return c.File != "" }

// MatchesCondition 变量值完整匹配正则
type MatchesCondition struct {
	Base
	Name    string `json:"name"`
	Pattern string `json:"regex"`

	once sync.Once
	re   *regexp.Regexp
	err  error
}

func (c *MatchesCondition) ReadFrom(el *document.Element, _ Parser) (err error) {
	if c.Name, err = requireParam(el, "name"); err != nil {
		return err
	}
	if c.Pattern, err = requireParam(el, "regex"); err != nil {
		return err
	}
	return c.Validate()
}

func (c *MatchesCondition) compile() (*regexp.Regexp, error) {
	c.once.Do(func() {
		c.re, c.err = regexp.Compile("^(?:" + c.Pattern + ")$")
	})
	return c.re, c.err
}

func (c *MatchesCondition) Validate() error {
	if _, err := c.compile(); err != nil {
		return fmt.Errorf("invalid regex %q: %w", c.Pattern, err)
	}
	return nil
}

func (c *MatchesCondition) IsTrue(env Env) bool {
	v, ok := env.Variable(c.Name)
	if !ok {
		return false
	}
	re, err := c.compile()
	return err == nil && re.MatchString(v)
}

func (c *MatchesCondition) Dependencies() Dependencies {
	return Dependencies{Variables: []string{c.Name}}
}

// ContainsCondition 变量值包含子串
type ContainsCondition struct {
	Base
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (c *ContainsCondition) ReadFrom(el *document.Element, _ Parser) (err error) {
	if c.Name, err = requireParam(el, "name"); err != nil {
		return err
	}
	c.Value, _ = el.Param("value")
	return nil
}

func (c *ContainsCondition) IsTrue(env Env) bool {
	v, ok := env.Variable(c.Name)
	return ok && strings.Contains(v, c.Value)
}

func (c *ContainsCondition) Dependencies() Dependencies {
	return Dependencies{Variables: []string{c.Name}}
}

// EmptyCondition 变量未设置或只含空白
type EmptyCondition struct {
	Base
	Name string `json:"name"`
}

func (c *EmptyCondition) ReadFrom(el *document.Element, _ Parser) (err error) {
	c.Name, err = requireParam(el, "name")
	return err
}

func (c *EmptyCondition) IsTrue(env Env) bool {
	v, _ := env.Variable(c.Name)
	return strings.TrimSpace(v) == ""
}

func (c *EmptyCondition) Dependencies() Dependencies {
	return Dependencies{Variables: []string{c.Name}}
}

// CompareNumericsCondition 按数值比较变量与给定值
type CompareNumericsCondition struct {
	Base
	Name     string `json:"name"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

func (c *CompareNumericsCondition) ReadFrom(el *document.Element, _ Parser) error {
	return readComparison(el, &c.Name, &c.Operator, &c.Value, c.Validate)
}

func (c *CompareNumericsCondition) Validate() error {
	if _, err := parseOperator(c.Operator); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(c.Value, 64); err != nil {
		return fmt.Errorf("value %q is not a number", c.Value)
	}
	return nil
}

func (c *CompareNumericsCondition) IsTrue(env Env) bool {
	op, err := parseOperator(c.Operator)
	if err != nil {
		return false
	}
	raw, ok := env.Variable(c.Name)
	if !ok {
		return false
	}
	left, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return false
	}
	right, err := strconv.ParseFloat(c.Value, 64)
	if err != nil {
		return false
	}
	switch {
	case left < right:
		return op(-1)
	case left > right:
		return op(1)
	default:
		return op(0)
	}
}

func (c *CompareNumericsCondition) Dependencies() Dependencies {
	return Dependencies{Variables: []string{c.Name}}
}

// CompareVersionsCondition 按点分版本号比较变量与给定值
type CompareVersionsCondition struct {
	Base
	Name     string `json:"name"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

func (c *CompareVersionsCondition) ReadFrom(el *document.Element, _ Parser) error {
	return readComparison(el, &c.Name, &c.Operator, &c.Value, c.Validate)
}

func (c *CompareVersionsCondition) Validate() error {
	_, err := parseOperator(c.Operator)
	return err
}

func (c *CompareVersionsCondition) IsTrue(env Env) bool {
	op, err := parseOperator(c.Operator)
	if err != nil {
		return false
	}
	v, ok := env.Variable(c.Name)
	if !ok || strings.TrimSpace(v) == "" {
		return false
	}
	return op(CompareVersions(v, c.Value))
}

func (c *CompareVersionsCondition) Dependencies() Dependencies {
	return Dependencies{Variables: []string{c.Name}}
}

func readComparison(el *document.Element, name, operator, value *string, validate func() error) (err error) {
	if *name, err = requireParam(el, "name"); err != nil {
		return err
	}
	if *operator, err = requireParam(el, "operator"); err != nil {
		return err
	}
	if *value, err = requireParam(el, "value"); err != nil {
		return err
	}
	return validate()
}

// parseOperator 返回判断比较结果（-1/0/1）的函数
func parseOperator(name string) (func(int) bool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "eq", "==", "=":
		return func(c int) bool { return c == 0 }, nil
	case "ne", "!=":
		return func(c int) bool { return c != 0 }, nil
	case "lt", "<":
		return func(c int) bool { return c < 0 }, nil
	case "le", "<=":
		return func(c int) bool { return c <= 0 }, nil
	case "gt", ">":
		return func(c int) bool { return c > 0 }, nil
	case "ge", ">=":
		return func(c int) bool { return c >= 0 }, nil
	}
	return nil, fmt.Errorf("unknown operator %q", name)
}

// CompareVersions 比较两个版本号，返回 -1、0 或 1。
// 以 . - _ 分段，两段都是数字时按数值比较，否则按字符串比较，缺失的段视为 0。
func CompareVersions(a, b string) int {
	pa, pb := splitVersion(a), splitVersion(b)
	n := max(len(pa), len(pb))
	for i := 0; i < n; i++ {
		x, y := "0", "0"
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}

		xi, errX := strconv.Atoi(x)
		yi, errY := strconv.Atoi(y)
		var c int
		if errX == nil && errY == nil {
			c = compareInts(xi, yi)
		} else {
			c = strings.Compare(x, y)
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func splitVersion(v string) []string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
}

func compareInts(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// PlatformCondition 当前平台属于给定平台族，可选限定架构
type PlatformCondition struct {
	Base
	OS   string `json:"os"`
	Arch string `json:"arch,omitempty"`
}

func (c *PlatformCondition) ReadFrom(el *document.Element, _ Parser) (err error) {
	if c.OS, err = requireParam(el, "os"); err != nil {
		return err
	}
	c.Arch = param(el, "arch")
	return nil
}

func (c *PlatformCondition) IsTrue(env Env) bool {
	p := env.Platform()
	if !p.IsA(c.OS) {
		return false
	}
	return c.Arch == "" || strings.EqualFold(c.Arch, p.Arch)
}

func (c *PlatformCondition) Dependencies() Dependencies { return Dependencies{} }
