package di

// graphBuilder 对作用域链上的绑定做静态依赖分析。
// 节点是 (作用域, 键)，依赖按声明所在作用域向上查找其所属作用域。
type graphBuilder struct {
	scopes   []*container
	bindings map[*container]map[Key]*binding
}

func newGraphBuilder(c *container) *graphBuilder {
	g := &graphBuilder{bindings: make(map[*container]map[Key]*binding)}
	for s := c; s != nil; s = s.parentScope() {
		s.mu.RLock()
		snapshot := make(map[Key]*binding, len(s.entries))
		for k, e := range s.entries {
			snapshot[k] = e.binding
		}
		s.mu.RUnlock()
		g.scopes = append(g.scopes, s)
		g.bindings[s] = snapshot
	}
	return g
}

// owner 从 from 开始向上找到持有 key 的作用域
func (g *graphBuilder) owner(from *container, key Key) *container {
	started := false
	for _, s := range g.scopes {
		if s == from {
			started = true
		}
		if !started {
			continue
		}
		if _, ok := g.bindings[s][key]; ok {
			return s
		}
	}
	return nil
}

func (g *graphBuilder) dependencies(b *binding) []Key {
	deps := b.schema.dependencies()
	for _, arg := range b.provideArgs {
		if arg.Type != containerType {
			deps = append(deps, arg)
		}
	}
	if b.kind == BindingAlias {
		deps = append(deps, b.target)
	}
	return deps
}

// verify 基于 DFS 的三色标记检查循环，未注册的依赖留给运行时报告
func (g *graphBuilder) verify() error {
	const (
		white = iota
		gray
		black
	)
	color := make(map[frame]int)
	var stack []frame

	var visit func(frame) error
	visit = func(u frame) error {
		color[u] = gray
		stack = append(stack, u)

		for _, dep := range g.dependencies(g.bindings[u.scope][u.key]) {
			owner := g.owner(u.scope, dep)
			if owner == nil {
				continue
			}
			v := frame{scope: owner, key: dep}
			switch color[v] {
			case white:
				if err := visit(v); err != nil {
					return err
				}
			case gray:
				for i, f := range stack {
					if f == v {
						return &CyclicDependencyError{Chain: append(chainKeys(stack[i:]), dep)}
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[u] = black
		return nil
	}

	for _, s := range g.scopes {
		for key := range g.bindings[s] {
			f := frame{scope: s, key: key}
			if color[f] == white {
				if err := visit(f); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Verify 对作用域链上的所有绑定做静态循环检查。
// 通过 Container 参数在运行时发起的解析不在检查范围内。
func (c *container) Verify() error {
	if c.disposed.Load() {
		return ErrDisposed
	}
	return newGraphBuilder(c).verify()
}
