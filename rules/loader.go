package rules

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/gocrud/installkit/di"
	"github.com/gocrud/installkit/document"
	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/metrics"
)

// loader 暂存一次加载中读到的条件，全部校验通过后才提交给引擎
type loader struct {
	engine *Engine
	staged map[string]Condition
	inline map[string]int
}

func newLoader(e *Engine) *loader {
	return &loader{
		engine: e,
		staged: make(map[string]Condition),
		inline: make(map[string]int),
	}
}

// Operand 实现 Parser
func (l *loader) Operand(parent Condition, el *document.Element) (string, error) {
	typ := el.Attr("type")
	if refid := el.Attr("refid"); refid != "" && el.Attr("id") == "" && (typ == "" || typ == TypeRef) {
		return refid, nil
	}

	id := el.Attr("id")
	if id == "" {
		l.inline[parent.ID()]++
		id = fmt.Sprintf("%s.%d", parent.ID(), l.inline[parent.ID()])
	}
	if _, err := l.read(id, el); err != nil {
		return "", err
	}
	return id, nil
}

func (l *loader) read(id string, el *document.Element) (Condition, error) {
	if _, dup := l.staged[id]; dup {
		return nil, malformed(id, "duplicate condition id")
	}
	typ := el.Attr("type")
	if typ == "" {
		return nil, malformed(id, "missing condition type")
	}

	cond, err := l.engine.newCondition(typ)
	if err != nil {
		return nil, &MalformedConditionError{ID: id, Err: err}
	}
	cond.SetID(id)
	l.staged[id] = cond

	if err := cond.ReadFrom(el, l); err != nil {
		var me *MalformedConditionError
		if errors.As(err, &me) {
			return nil, err
		}
		return nil, &MalformedConditionError{ID: id, Err: err}
	}
	return cond, nil
}

// newCondition 先查内置类型，再按类名从条件容器实例化
func (e *Engine) newCondition(typ string) (Condition, error) {
	if factory, ok := builtins[typ]; ok {
		return factory(), nil
	}
	cond, err := di.New[Condition](e.container, typ)
	if err != nil {
		if errors.Is(err, di.ErrClassNotFound) {
			return nil, fmt.Errorf("unknown condition type %q", typ)
		}
		return nil, fmt.Errorf("create condition of type %q: %w", typ, err)
	}
	return cond, nil
}

// RegisterConditionType 以类名登记自定义条件类型，typ 或其指针必须实现 Condition
func (e *Engine) RegisterConditionType(name string, typ reflect.Type) error {
	if _, ok := builtins[name]; ok {
		return fmt.Errorf("%w: %q is a built-in condition type", di.ErrInvalidBinding, name)
	}
	if typ == nil || !(typ.Implements(conditionType) ||
		(typ.Kind() == reflect.Struct && reflect.PointerTo(typ).Implements(conditionType))) {
		return fmt.Errorf("%w: %v does not implement rules.Condition", di.ErrTypeMismatch, typ)
	}
	return e.container.RegisterClass(name, typ)
}

// ReadConditionMap 批量加载已构建好的条件，map 的键即条件 id
func (e *Engine) ReadConditionMap(conditions map[string]Condition) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	staged := make(map[string]Condition, len(conditions))
	for id, cond := range conditions {
		if cond == nil {
			return malformed(id, "nil condition")
		}
		staged[id] = cond
	}
	// 提交成功后才改写调用方条件的 id
	return e.commit(staged, func() {
		for id, cond := range staged {
			if cond.ID() != id {
				cond.SetID(id)
			}
		}
	})
}

// AnalyzeDocument 从条件文档读取并登记所有顶层 condition 元素
func (e *Engine) AnalyzeDocument(root *document.Element) error {
	if root == nil {
		return malformed("", "empty condition document")
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	l := newLoader(e)
	for _, el := range root.ChildrenNamed("condition") {
		id := el.Attr("id")
		if id == "" {
			return malformed("", "top-level condition without id")
		}
		if _, err := l.read(id, el); err != nil {
			return err
		}
	}
	return e.commit(l.staged, nil)
}

// BuildConditionMap 把按 id 序列化的条件元素实例化为条件表，不登记到引擎。
// 内联子条件也会出现在结果中。
func (e *Engine) BuildConditionMap(elements map[string]*document.Element) (map[string]Condition, error) {
	ids := make([]string, 0, len(elements))
	for id := range elements {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	l := newLoader(e)
	for _, id := range ids {
		if elements[id] == nil {
			return nil, malformed(id, "nil element")
		}
		if _, err := l.read(id, elements[id]); err != nil {
			return nil, err
		}
	}
	return l.staged, nil
}

// commit 在现有条件之上叠加 staged，校验参数、引用与循环，全部通过后整体替换。
// apply 非空时在替换前、持锁期间调用。
func (e *Engine) commit(staged map[string]Condition, apply func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	combined := make(map[string]Condition, len(e.conditions)+len(staged))
	for id, cond := range e.conditions {
		combined[id] = cond
	}
	for id, cond := range staged {
		combined[id] = cond
	}

	ids := make([]string, 0, len(staged))
	for id := range staged {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		cond := staged[id]
		if v, ok := cond.(validator); ok {
			if err := v.Validate(); err != nil {
				return &MalformedConditionError{ID: id, Err: err}
			}
		}
		for _, dep := range cond.Dependencies().Conditions {
			if _, ok := combined[dep]; !ok {
				return malformed(id, "references unknown condition %q", dep)
			}
		}
	}

	graph := make(map[string][]string, len(combined))
	for id, cond := range combined {
		graph[id] = cond.Dependencies().Conditions
	}
	if chain := findCycle(graph); chain != nil {
		return &CyclicConditionError{Chain: chain}
	}

	if apply != nil {
		apply()
	}
	e.conditions = combined
	e.rebuildIndexLocked()
	e.cache = make(map[string]bool)
	e.generation++

	e.logger.Debug("条件已加载",
		logging.F("added", len(staged)), logging.F("total", len(combined)))
	metrics.SetConditions(len(combined))
	return nil
}
