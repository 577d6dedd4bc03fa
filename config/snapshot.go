package config

import (
	"strings"
	"sync"
	"sync/atomic"
)

// snapshot 一次加载得到的完整配置，创建后不再修改
type snapshot struct {
	data map[string]any
	// generation 从 1 开始，每次替换加一
	generation uint64
}

// snapshotStore 原子替换快照，读取无锁
type snapshotStore struct {
	current atomic.Pointer[snapshot]
}

func newSnapshotStore(data map[string]any) *snapshotStore {
	if data == nil {
		data = make(map[string]any)
	}
	s := &snapshotStore{}
	s.current.Store(&snapshot{data: data, generation: 1})
	return s
}

func (s *snapshotStore) load() *snapshot {
	return s.current.Load()
}

// replace 用 data 替换当前快照，返回新快照的代数
func (s *snapshotStore) replace(data map[string]any) uint64 {
	for {
		old := s.current.Load()
		next := &snapshot{data: data, generation: old.generation + 1}
		if s.current.CompareAndSwap(old, next) {
			return next.generation
		}
	}
}

// pathSegments 把 "a:b.c" 拆成 [a b c]，结果按路径缓存
var pathSegments sync.Map

func splitPath(path string) []string {
	if v, ok := pathSegments.Load(path); ok {
		return v.([]string)
	}
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == ':' || r == '.' })
	pathSegments.Store(path, parts)
	return parts
}
