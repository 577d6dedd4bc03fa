package rules

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/installkit/di"
	"github.com/gocrud/installkit/document"
	"github.com/gocrud/installkit/platform"
	"github.com/gocrud/installkit/variables"
)

type Counter struct {
	n atomic.Int32
}

// probeCondition 记录被求值的次数
type probeCondition struct {
	Base
	Counter *Counter `di:""`
	Result  bool
}

func (c *probeCondition) ReadFrom(el *document.Element, _ Parser) error {
	c.Result = el.Attr("result") == "true"
	return nil
}

func (c *probeCondition) IsTrue(Env) bool {
	c.Counter.n.Add(1)
	return c.Result
}

func (c *probeCondition) Dependencies() Dependencies { return Dependencies{} }

// observingCondition 读取变量但不声明依赖
type observingCondition struct {
	Base
}

func (c *observingCondition) ReadFrom(*document.Element, Parser) error { return nil }

func (c *observingCondition) IsTrue(env Env) bool {
	v, _ := env.Variable("Z")
	return v == "on"
}

func (c *observingCondition) Dependencies() Dependencies { return Dependencies{} }

// substitutingCondition 只通过 Substitute 读取变量
type substitutingCondition struct {
	Base
}

func (c *substitutingCondition) ReadFrom(*document.Element, Parser) error { return nil }

func (c *substitutingCondition) IsTrue(env Env) bool {
	return env.Substitute("${MODE}") == "full"
}

func (c *substitutingCondition) Dependencies() Dependencies { return Dependencies{} }

type panickingCondition struct {
	Base
}

func (c *panickingCondition) ReadFrom(*document.Element, Parser) error { return nil }
func (c *panickingCondition) IsTrue(Env) bool                          { panic("boom") }
func (c *panickingCondition) Dependencies() Dependencies               { return Dependencies{} }

func newTestEngine(t *testing.T) (*Engine, *variables.Store, *Counter) {
	t.Helper()
	parent := di.NewContainer()
	counter := &Counter{}
	require.NoError(t, di.Add[*Counter](parent, counter))

	vars := variables.NewStore()
	engine := NewEngine(vars, NewConditionContainer(parent))
	t.Cleanup(func() {
		_ = engine.Close()
		parent.Dispose()
	})
	return engine, vars, counter
}

func cond(typ, id string, attrs ...string) *document.Element {
	el := document.NewElement("condition").SetAttr("type", typ)
	if id != "" {
		el.SetAttr("id", id)
	}
	for i := 0; i+1 < len(attrs); i += 2 {
		el.SetAttr(attrs[i], attrs[i+1])
	}
	return el
}

func doc(children ...*document.Element) *document.Element {
	root := document.NewElement("conditions")
	for _, c := range children {
		root.AddChild(c)
	}
	return root
}

func TestVariableChangeInvalidatesCache(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	vars.Set("X", "1")
	require.NoError(t, engine.AnalyzeDocument(doc(cond(TypeVariable, "C", "name", "X", "value", "1"))))

	assert.True(t, engine.IsConditionTrue("C"))
	assert.True(t, engine.IsConditionTrue("C"))

	vars.Set("X", "2")
	assert.False(t, engine.IsConditionTrue("C"))

	vars.Delete("X")
	assert.False(t, engine.IsConditionTrue("C"))
}

func TestTransitiveInvalidation(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	vars.Set("X", "1")
	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypeVariable, "A", "name", "X", "value", "1"),
		cond(TypeNot, "notA", "refid", "A"),
		cond(TypeRef, "alias", "refid", "notA"),
	)))

	assert.False(t, engine.IsConditionTrue("alias"))
	vars.Set("X", "0")
	assert.True(t, engine.IsConditionTrue("alias"))
}

func TestOrShortCircuitKeepsDependency(t *testing.T) {
	engine, vars, counter := newTestEngine(t)
	require.NoError(t, engine.RegisterConditionType("probe", di.TypeOf[probeCondition]()))
	vars.Set("X", "1")

	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypeVariable, "A", "name", "X", "value", "1"),
		cond("probe", "B", "result", "true"),
		cond(TypeOr, "C", "refid", "A,B"),
	)))

	assert.True(t, engine.IsConditionTrue("C"))
	assert.Equal(t, int32(0), counter.n.Load())

	c, ok := engine.GetCondition("C")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, c.Dependencies().Conditions)

	// A 变为假后 C 必须重新求值并走到 B
	vars.Set("X", "0")
	assert.True(t, engine.IsConditionTrue("C"))
	assert.Equal(t, int32(1), counter.n.Load())

	assert.True(t, engine.IsConditionTrue("C"))
	assert.Equal(t, int32(1), counter.n.Load())
}

func TestAndShortCircuit(t *testing.T) {
	engine, _, counter := newTestEngine(t)
	require.NoError(t, engine.RegisterConditionType("probe", di.TypeOf[probeCondition]()))

	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypeVariable, "A", "name", "X", "value", "1"),
		cond(TypeAnd, "C", "refid", "A").AddChild(cond("probe", "", "result", "true")),
	)))

	assert.False(t, engine.IsConditionTrue("C"))
	assert.Equal(t, int32(0), counter.n.Load())

	_, ok := engine.GetCondition("C.1")
	assert.True(t, ok)
}

func TestCyclicDefinitionRegistersNothing(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	require.NoError(t, engine.AnalyzeDocument(doc(cond(TypeVariable, "existing", "name", "X", "value", "1"))))

	err := engine.AnalyzeDocument(doc(
		cond(TypeRef, "A", "refid", "B"),
		cond(TypeRef, "B", "refid", "A"),
	))
	require.ErrorIs(t, err, ErrCyclicCondition)

	var cyclic *CyclicConditionError
	require.ErrorAs(t, err, &cyclic)
	assert.Equal(t, []string{"A", "B", "A"}, cyclic.Chain)
	assert.Contains(t, err.Error(), "A -> B -> A")

	_, ok := engine.GetCondition("A")
	assert.False(t, ok)
	_, ok = engine.GetCondition("B")
	assert.False(t, ok)
	assert.Equal(t, []string{"existing"}, engine.ConditionIDs())
}

func TestCycleThroughExistingConditions(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypeVariable, "B", "name", "X", "value", "1"),
		cond(TypeNot, "A", "refid", "B"),
	)))

	// 重新定义 B 引用 A，与已有的 A -> B 成环
	err := engine.AnalyzeDocument(doc(cond(TypeRef, "B", "refid", "A")))
	assert.ErrorIs(t, err, ErrCyclicCondition)

	b, ok := engine.GetCondition("B")
	require.True(t, ok)
	assert.IsType(t, &VariableCondition{}, b)
}

func TestMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		root *document.Element
	}{
		{"dangling reference", doc(cond(TypeRef, "A", "refid", "missing"))},
		{"unknown type", doc(cond("nope", "A"))},
		{"missing type", doc(document.NewElement("condition").SetAttr("id", "A"))},
		{"missing id", doc(cond(TypeVariable, "", "name", "X"))},
		{"missing parameter", doc(cond(TypeVariable, "A"))},
		{"bad operator", doc(cond(TypeCompareNumerics, "A", "name", "X", "operator", "~", "value", "1"))},
		{"bad regex", doc(cond(TypeMatches, "A", "name", "X", "regex", "("))},
		{"duplicate id", doc(cond(TypeVariable, "A", "name", "X"), cond(TypeVariable, "A", "name", "Y"))},
		{"not arity", doc(cond(TypeNot, "A"))},
		{"xor arity", doc(cond(TypeXor, "A").AddChild(cond(TypeVariable, "", "name", "X")))},
		{"bad inline child", doc(cond(TypeAnd, "A").AddChild(cond(TypeVariable, "", "value", "1")))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, _ := newTestEngine(t)
			err := engine.AnalyzeDocument(tt.root)
			assert.ErrorIs(t, err, ErrMalformedCondition)
			assert.Empty(t, engine.ConditionIDs())
		})
	}
}

func TestMalformedErrorNamesInlineChild(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	err := engine.AnalyzeDocument(doc(cond(TypeAnd, "A").AddChild(cond(TypeVariable, "", "value", "1"))))

	var me *MalformedConditionError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "A.1", me.ID)
}

func TestUnknownConditionIsFalse(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	assert.False(t, engine.IsConditionTrue("missing"))
	_, ok := engine.GetCondition("missing")
	assert.False(t, ok)
}

func TestExpressions(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	vars.SetAll(map[string]string{"A": "1", "B": "0", "C": "1"})
	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypeVariable, "a", "name", "A", "value", "1"),
		cond(TypeVariable, "b", "name", "B", "value", "1"),
		cond(TypeVariable, "c", "name", "C", "value", "1"),
	)))

	tests := map[string]bool{
		"a+b":       false,
		"a|b":       true,
		"!b":        true,
		"a\\c":      false,
		"a\\b":      true,
		"!(a+c)":    false,
		"(a|b)+!c":  false,
		"b|a+c":     true,
		"!a|b":      false,
		" a + c ":   true,
		"a+":        false,
		"(a|b":      false,
		"a+missing": false,
	}
	for expression, want := range tests {
		assert.Equal(t, want, engine.IsConditionTrue(expression), expression)
	}
}

func TestCustomConditionInjectedFromParent(t *testing.T) {
	engine, _, counter := newTestEngine(t)
	require.NoError(t, engine.RegisterConditionType("com.example.Probe", di.TypeOf[probeCondition]()))
	require.NoError(t, engine.AnalyzeDocument(doc(cond("com.example.Probe", "P", "result", "true"))))

	assert.True(t, engine.IsConditionTrue("P"))
	assert.True(t, engine.IsConditionTrue("P"))
	assert.Equal(t, int32(1), counter.n.Load())

	p, ok := engine.GetCondition("P")
	require.True(t, ok)
	assert.Same(t, counter, p.(*probeCondition).Counter)
}

func TestRegisterConditionTypeRejects(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	assert.ErrorIs(t, engine.RegisterConditionType(TypeAnd, di.TypeOf[probeCondition]()), di.ErrInvalidBinding)
	assert.ErrorIs(t, engine.RegisterConditionType("foo", di.TypeOf[Counter]()), di.ErrTypeMismatch)
}

func TestObservedVariableInvalidates(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	require.NoError(t, engine.RegisterConditionType("observing", di.TypeOf[observingCondition]()))
	require.NoError(t, engine.AnalyzeDocument(doc(
		cond("observing", "O"),
		cond(TypeRef, "R", "refid", "O"),
	)))

	assert.False(t, engine.IsConditionTrue("R"))
	vars.Set("Z", "on")
	assert.True(t, engine.IsConditionTrue("R"))
}

func TestSubstitutedVariableInvalidates(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	require.NoError(t, engine.ReadConditionMap(map[string]Condition{
		"S": &substitutingCondition{},
		"R": &RefCondition{RefID: "S"},
	}))

	assert.False(t, engine.IsConditionTrue("R"), "MODE undefined")
	vars.Set("MODE", "full")
	assert.True(t, engine.IsConditionTrue("R"))
	vars.Set("MODE", "minimal")
	assert.False(t, engine.IsConditionTrue("S"))
	assert.False(t, engine.IsConditionTrue("R"))
}

func TestPanickingConditionIsFalse(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	require.NoError(t, engine.ReadConditionMap(map[string]Condition{"P": &panickingCondition{}}))
	assert.False(t, engine.IsConditionTrue("P"))
}

func TestReadConditionMap(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	vars.Set("VERSION", "1.10.0")

	err := engine.ReadConditionMap(map[string]Condition{
		"new":    &CompareVersionsCondition{Name: "VERSION", Operator: "ge", Value: "1.9"},
		"old":    &NotCondition{Operand: "new"},
		"either": &XorCondition{Operands: []string{"new", "old"}},
	})
	require.NoError(t, err)

	assert.True(t, engine.IsConditionTrue("new"))
	assert.False(t, engine.IsConditionTrue("old"))
	assert.True(t, engine.IsConditionTrue("either"))

	c, _ := engine.GetCondition("old")
	assert.Equal(t, "old", c.ID())
	assert.Equal(t, TypeNot, TypeName(c))

	err = engine.ReadConditionMap(map[string]Condition{"x": &RefCondition{RefID: "nowhere"}})
	assert.ErrorIs(t, err, ErrMalformedCondition)
	err = engine.ReadConditionMap(map[string]Condition{"x": &MatchesCondition{Name: "A", Pattern: "["}})
	assert.ErrorIs(t, err, ErrMalformedCondition)
}

func TestFailedConditionMapLeavesInputUntouched(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	named := &VariableCondition{Name: "A", Value: "1"}
	named.SetID("original")
	err := engine.ReadConditionMap(map[string]Condition{
		"renamed": named,
		"broken":  &RefCondition{RefID: "nowhere"},
	})
	require.ErrorIs(t, err, ErrMalformedCondition)
	assert.Equal(t, "original", named.ID())
	assert.Empty(t, engine.ConditionIDs())

	require.NoError(t, engine.ReadConditionMap(map[string]Condition{"renamed": named}))
	assert.Equal(t, "renamed", named.ID())
}

func TestBuildConditionMap(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	vars.Set("X", "yes")

	built, err := engine.BuildConditionMap(map[string]*document.Element{
		"isYes": cond(TypeVariable, "ignored", "name", "X", "value", "yes"),
		"both": cond(TypeAnd, "").
			AddChild(cond(TypeRef, "", "refid", "isYes")).
			AddChild(cond(TypeMatches, "", "name", "X", "regex", "y.*")),
	})
	require.NoError(t, err)
	assert.Len(t, built, 3)
	assert.Contains(t, built, "both.1")
	assert.Empty(t, engine.ConditionIDs())

	require.NoError(t, engine.ReadConditionMap(built))
	assert.True(t, engine.IsConditionTrue("both"))
	assert.True(t, engine.IsConditionTrue("isYes"))
}

func TestBuiltinConditions(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	vars.SetAll(map[string]string{
		"PORT":    "8080",
		"NAME":    "installkit",
		"BLANK":   "  ",
		"VERSION": "2.0.1",
	})

	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypeExists, "hasName", "variable", "NAME"),
		cond(TypeExists, "hasMissing", "variable", "MISSING"),
		cond(TypeMatches, "isKit", "name", "NAME", "regex", "install.*"),
		cond(TypeMatches, "partial", "name", "NAME", "regex", "kit"),
		cond(TypeContains, "hasKit", "name", "NAME", "value", "kit"),
		cond(TypeEmpty, "blank", "name", "BLANK"),
		cond(TypeEmpty, "unset", "name", "MISSING"),
		cond(TypeEmpty, "notBlank", "name", "NAME"),
		cond(TypeCompareNumerics, "bigPort", "name", "PORT", "operator", ">", "value", "1024"),
		cond(TypeCompareNumerics, "portIsText", "name", "NAME", "operator", "gt", "value", "1"),
		cond(TypeCompareVersions, "v2", "name", "VERSION", "operator", "lt", "value", "2.0.10"),
	)))

	want := map[string]bool{
		"hasName": true, "hasMissing": false,
		"isKit": true, "partial": false,
		"hasKit": true,
		"blank":  true, "unset": true, "notBlank": false,
		"bigPort": true, "portIsText": false,
		"v2": true,
	}
	for id, expected := range want {
		assert.Equal(t, expected, engine.IsConditionTrue(id), id)
	}
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, CompareVersions("1.0", "1.0.0"))
	assert.Equal(t, -1, CompareVersions("1.9", "1.10"))
	assert.Equal(t, 1, CompareVersions("v2.1", "2.0.9"))
	assert.Equal(t, -1, CompareVersions("1.0-alpha", "1.0-beta"))
	assert.Equal(t, 1, CompareVersions("1.0.1", "1.0"))
}

func TestExistsFileIsNotCached(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	dir := t.TempDir()
	vars.Set("DIR", dir)

	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypeExists, "marker", "file", "${DIR}/marker"),
		cond(TypeNot, "noMarker", "refid", "marker"),
	)))
	assert.False(t, engine.IsConditionTrue("marker"))
	assert.True(t, engine.IsConditionTrue("noMarker"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), nil, 0o644))
	assert.True(t, engine.IsConditionTrue("marker"))
	assert.False(t, engine.IsConditionTrue("noMarker"))
}

func TestPlatformCondition(t *testing.T) {
	vars := variables.NewStore()
	engine := NewEngine(vars, nil, WithPlatform(platform.Platform{Name: "darwin", Arch: "arm64"}))
	defer engine.Close()

	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypePlatform, "mac", "os", "mac"),
		cond(TypePlatform, "unixArm", "os", "unix", "arch", "arm64"),
		cond(TypePlatform, "unixAmd", "os", "unix", "arch", "amd64"),
		cond(TypePlatform, "win", "os", "windows"),
	)))
	assert.True(t, engine.IsConditionTrue("mac"))
	assert.True(t, engine.IsConditionTrue("unixArm"))
	assert.False(t, engine.IsConditionTrue("unixAmd"))
	assert.False(t, engine.IsConditionTrue("win"))
}

func TestPlatformResolvedFromContainer(t *testing.T) {
	parent := di.NewContainer()
	require.NoError(t, di.Add[platform.Platform](parent, platform.Platform{Name: "windows", Arch: "amd64"}))

	engine := NewEngine(nil, NewConditionContainer(parent))
	defer engine.Close()
	assert.Equal(t, "windows", engine.Platform().Name)
}

func TestAnalyzeYAMLDocument(t *testing.T) {
	root, err := document.ParseYAML([]byte(`
conditions:
  condition:
    - id: typical
      type: variable
      name: INSTALL_TYPE
      value: typical
    - id: typicalWithJava
      type: and
      condition:
        - refid: typical
        - type: exists
          variable: JAVA_HOME
`))
	require.NoError(t, err)

	engine, vars, _ := newTestEngine(t)
	require.NoError(t, engine.AnalyzeDocument(root))
	assert.Equal(t, []string{"typical", "typicalWithJava", "typicalWithJava.1"}, engine.ConditionIDs())

	vars.Set("INSTALL_TYPE", "typical")
	assert.False(t, engine.IsConditionTrue("typicalWithJava"))
	vars.Set("JAVA_HOME", "/usr/lib/jvm")
	assert.True(t, engine.IsConditionTrue("typicalWithJava"))
}

func TestAnalyzeXMLDocument(t *testing.T) {
	root, err := document.ParseXMLBytes([]byte(`<conditions>
  <condition type="variable" id="isX">
    <name>X</name>
    <value>1</value>
  </condition>
  <condition type="not" id="notX">
    <condition type="ref" refid="isX"/>
  </condition>
</conditions>`))
	require.NoError(t, err)

	engine, vars, _ := newTestEngine(t)
	require.NoError(t, engine.AnalyzeDocument(root))
	vars.Set("X", "1")
	assert.True(t, engine.IsConditionTrue("isX"))
	assert.False(t, engine.IsConditionTrue("notX"))
}

func TestCloseStopsInvalidation(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	vars.Set("X", "1")
	require.NoError(t, engine.AnalyzeDocument(doc(cond(TypeVariable, "C", "name", "X", "value", "1"))))
	assert.True(t, engine.IsConditionTrue("C"))

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
	vars.Set("X", "2")
	assert.True(t, engine.IsConditionTrue("C"))
}

func TestConcurrentEvaluation(t *testing.T) {
	engine, vars, _ := newTestEngine(t)
	require.NoError(t, engine.AnalyzeDocument(doc(
		cond(TypeVariable, "A", "name", "X", "value", "1"),
		cond(TypeNot, "B", "refid", "A"),
	)))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				engine.IsConditionTrue("B")
			}
		}()
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				vars.Set("X", "1")
			} else {
				vars.Set("X", "0")
			}
		}(i)
	}
	wg.Wait()

	vars.Set("X", "1")
	assert.False(t, engine.IsConditionTrue("B"))
	vars.Set("X", "0")
	assert.True(t, engine.IsConditionTrue("B"))
}
