package rules

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/gocrud/installkit/di"
	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/metrics"
	"github.com/gocrud/installkit/platform"
	"github.com/gocrud/installkit/variables"
)

// Engine 条件规则引擎。
//
// 求值结果按条件 id 缓存。引擎订阅变量存储，变量 V 变化时，
// 失效所有直接依赖 V 的条件（静态声明的或求值时观测到的），以及传递引用它们的条件。
type Engine struct {
	vars      *variables.Store
	container *ConditionContainer
	platform  platform.Platform
	logger    logging.Logger

	unsubscribe func()
	closeOnce   sync.Once

	loadMu sync.Mutex

	mu         sync.RWMutex
	conditions map[string]Condition
	cache      map[string]bool
	// generation 每次失效或重新加载时递增，求值开始后若发生变化则结果不写入缓存
	generation uint64
	// byVariable 变量名 -> 直接依赖它的条件
	byVariable map[string]map[string]struct{}
	// dependents 条件 id -> 引用它的条件
	dependents map[string]map[string]struct{}
}

// Option 引擎选项
type Option func(*Engine)

// WithLogger 设置日志记录器
func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(logger) }
}

// WithPlatform 指定平台，默认从条件容器解析，解析不到时使用当前平台
func WithPlatform(p platform.Platform) Option {
	return func(e *Engine) { e.platform = p }
}

// NewEngine 创建引擎。vars 为 nil 时使用空的变量存储，container 为 nil 时使用独立的条件容器。
func NewEngine(vars *variables.Store, container *ConditionContainer, opts ...Option) *Engine {
	if vars == nil {
		vars = variables.NewStore()
	}
	if container == nil {
		container = NewConditionContainer(di.NewContainer(di.WithName("rules")))
	}

	e := &Engine{
		vars:       vars,
		container:  container,
		logger:     logging.Nop(),
		conditions: make(map[string]Condition),
		cache:      make(map[string]bool),
		byVariable: make(map[string]map[string]struct{}),
		dependents: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.platform.Name == "" {
		e.platform = platform.Current()
		if p, err := di.Resolve[platform.Platform](container); err != nil {
			e.logger.Warn("解析平台失败，使用当前平台", logging.F("error", err))
		} else if p.Name != "" {
			e.platform = p
		}
	}

	e.unsubscribe = vars.OnChange(e.onChange)
	return e
}

// Variables 返回引擎使用的变量存储
func (e *Engine) Variables() *variables.Store { return e.vars }

// Container 返回条件容器
func (e *Engine) Container() *ConditionContainer { return e.container }

// Platform 返回求值使用的平台
func (e *Engine) Platform() platform.Platform { return e.platform }

// Close 取消对变量存储的订阅
func (e *Engine) Close() error {
	e.closeOnce.Do(e.unsubscribe)
	return nil
}

// GetCondition 按 id 查找条件
func (e *Engine) GetCondition(id string) (Condition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.conditions[id]
	return c, ok
}

// ConditionIDs 返回排序后的所有条件 id
func (e *Engine) ConditionIDs() []string {
	e.mu.RLock()
	ids := make([]string, 0, len(e.conditions))
	for id := range e.conditions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IsConditionTrue 求值条件 id 或条件表达式（见 expression.go）。
// 从不返回错误：未知 id、无法解析的表达式都视为 false。
func (e *Engine) IsConditionTrue(expression string) bool {
	expression = strings.TrimSpace(expression)

	e.mu.RLock()
	_, known := e.conditions[expression]
	e.mu.RUnlock()

	if known || !isExpression(expression) {
		v, _ := e.evaluate(expression, nil)
		return v
	}

	x, err := parseExpression(expression)
	if err != nil {
		e.logger.Warn("无效的条件表达式",
			logging.F("expression", expression), logging.F("error", err))
		return false
	}
	return x.eval(func(id string) bool {
		v, _ := e.evaluate(id, nil)
		return v
	})
}

// evaluate 求值单个条件，返回结果及结果是否可缓存
func (e *Engine) evaluate(id string, stack []string) (bool, bool) {
	e.mu.RLock()
	cond, ok := e.conditions[id]
	value, hit := e.cache[id]
	gen := e.generation
	e.mu.RUnlock()

	if !ok {
		e.logger.Warn("未知条件", logging.F("id", id))
		return false, true
	}
	if hit {
		metrics.RecordCacheHit()
		return value, true
	}
	for _, s := range stack {
		if s == id {
			e.logger.Warn("条件求值出现循环",
				logging.F("chain", strings.Join(append(stack, id), " -> ")))
			return false, false
		}
	}

	metrics.RecordCacheMiss()
	env := &evalEnv{engine: e, stack: append(stack[:len(stack):len(stack)], id), cacheable: true}
	value, ok = e.safeIsTrue(cond, env)
	metrics.RecordEvaluation()

	cacheable := ok && env.cacheable
	if u, isU := cond.(Uncacheable); isU && u.Uncacheable() {
		cacheable = false
	}

	e.mu.Lock()
	for _, name := range env.vars {
		addEdge(e.byVariable, name, id)
	}
	for _, ref := range env.refs {
		addEdge(e.dependents, ref, id)
	}
	if cacheable && e.generation == gen {
		e.cache[id] = value
	}
	e.mu.Unlock()

	return value, cacheable
}

func (e *Engine) safeIsTrue(cond Condition, env Env) (value bool, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("条件求值 panic",
				logging.F("id", cond.ID()), logging.F("panic", fmt.Sprint(r)))
			value, ok = false, false
		}
	}()
	return cond.IsTrue(env), true
}

// onChange 变量变化时失效受影响的缓存项
func (e *Engine) onChange(change variables.Change) {
	e.mu.Lock()
	e.generation++

	affected := make(map[string]struct{})
	var queue []string
	for id := range e.byVariable[change.Name] {
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := affected[id]; seen {
			continue
		}
		affected[id] = struct{}{}
		for parent := range e.dependents[id] {
			queue = append(queue, parent)
		}
	}

	n := 0
	for id := range affected {
		if _, ok := e.cache[id]; ok {
			delete(e.cache, id)
			n++
		}
	}
	e.mu.Unlock()

	if n > 0 {
		metrics.RecordInvalidations(n)
		e.logger.Debug("条件缓存已失效",
			logging.F("variable", change.Name), logging.F("count", n))
	}
}

// rebuildIndexLocked 根据静态依赖重建索引，观测到的依赖在之后的求值中补充
func (e *Engine) rebuildIndexLocked() {
	e.byVariable = make(map[string]map[string]struct{})
	e.dependents = make(map[string]map[string]struct{})
	for id, cond := range e.conditions {
		deps := cond.Dependencies()
		for _, name := range deps.Variables {
			addEdge(e.byVariable, name, id)
		}
		for _, ref := range deps.Conditions {
			addEdge(e.dependents, ref, id)
		}
	}
}

func addEdge(index map[string]map[string]struct{}, from, to string) {
	set, ok := index[from]
	if !ok {
		set = make(map[string]struct{})
		index[from] = set
	}
	set[to] = struct{}{}
}

// TypeName 返回条件的类型名，内置条件返回其类型关键字
func TypeName(c Condition) string {
	t := reflect.TypeOf(c)
	for name, factory := range builtins {
		if reflect.TypeOf(factory()) == t {
			return name
		}
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// evalEnv 单个条件的求值环境，记录求值中观测到的变量与引用
type evalEnv struct {
	engine    *Engine
	stack     []string
	cacheable bool
	vars      []string
	refs      []string
}

func (v *evalEnv) Variable(name string) (string, bool) {
	v.vars = append(v.vars, name)
	val, ok := v.engine.vars.Get(name)
	if !ok {
		v.engine.logger.Debug("变量未设置", logging.F("name", name))
	}
	return val, ok
}

func (v *evalEnv) IsTrue(id string) bool {
	v.refs = append(v.refs, id)
	val, cacheable := v.engine.evaluate(id, v.stack)
	if !cacheable {
		v.cacheable = false
	}
	return val
}

// Substitute 通过 Variable 展开，被引用的变量记入观测依赖
func (v *evalEnv) Substitute(text string) string {
	return variables.Expand(text, v.Variable)
}

func (v *evalEnv) Platform() platform.Platform {
	return v.engine.platform
}
