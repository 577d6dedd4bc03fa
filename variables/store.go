// Package variables 安装变量存储。
package variables

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gocrud/installkit/config"
)

// Change 描述一次变量变更
type Change struct {
	Name string
	Old  string
	New  string
	// Existed 变更前变量是否存在
	Existed bool
	// Deleted 本次变更是否为删除
	Deleted bool
}

// Listener 变量变更监听器
type Listener func(Change)

type subscription struct {
	id int
	fn Listener
}

// Store 线程安全的变量存储。
// 写操作完成并释放锁之后才通知监听器，监听器内可以再读写 Store。
type Store struct {
	mu     sync.RWMutex
	values map[string]string

	lmu       sync.Mutex
	listeners []subscription
	nextID    int
}

// NewStore 创建变量存储
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Get 获取变量值
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Value 获取变量值，不存在时返回空串
func (s *Store) Value(name string) string {
	v, _ := s.Get(name)
	return v
}

// Set 设置变量，值未改变时不通知
func (s *Store) Set(name, value string) {
	s.mu.Lock()
	change, changed := s.setLocked(name, value)
	s.mu.Unlock()

	if changed {
		s.notify(change)
	}
}

// SetAll 批量设置变量，所有写入完成后再逐个通知
func (s *Store) SetAll(values map[string]string) {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	changes := make([]Change, 0, len(values))
	s.mu.Lock()
	for _, name := range names {
		if change, changed := s.setLocked(name, values[name]); changed {
			changes = append(changes, change)
		}
	}
	s.mu.Unlock()

	for _, change := range changes {
		s.notify(change)
	}
}

func (s *Store) setLocked(name, value string) (Change, bool) {
	old, existed := s.values[name]
	if existed && old == value {
		return Change{}, false
	}
	s.values[name] = value
	return Change{Name: name, Old: old, New: value, Existed: existed}, true
}

// Delete 删除变量，返回变量是否存在
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	old, existed := s.values[name]
	delete(s.values, name)
	s.mu.Unlock()

	if existed {
		s.notify(Change{Name: name, Old: old, Existed: true, Deleted: true})
	}
	return existed
}

// Snapshot 返回当前所有变量的副本
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]string, len(s.values))
	for k, v := range s.values {
		result[k] = v
	}
	return result
}

// Names 返回排序后的变量名
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// OnChange 注册变更监听器，返回取消函数
func (s *Store) OnChange(fn Listener) (unsubscribe func()) {
	s.lmu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			defer s.lmu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) notify(change Change) {
	s.lmu.Lock()
	listeners := make([]Listener, len(s.listeners))
	for i, sub := range s.listeners {
		listeners[i] = sub.fn
	}
	s.lmu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

// LoadFrom 从配置节导入变量，嵌套键用 . 连接
func (s *Store) LoadFrom(cfg config.Configuration, section string) {
	data := cfg.GetAll()
	if section != "" {
		data = cfg.GetSection(section).GetAll()
	}

	values := make(map[string]string)
	flatten("", data, values)
	s.SetAll(values)
}

func flatten(prefix string, data map[string]any, out map[string]string) {
	for k, v := range data {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(name, val, out)
		case nil:
			out[name] = ""
		case string:
			out[name] = val
		default:
			out[name] = fmt.Sprint(val)
		}
	}
}

// Substitute 展开 ${name} 与 $name 引用；未定义的变量保持原样，$$ 输出 $。
// $name 形式的变量名只包含字母、数字和下划线。
func (s *Store) Substitute(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Expand(text, func(name string) (string, bool) {
		v, ok := s.values[name]
		return v, ok
	})
}

// Expand 按 Substitute 的语法展开 text，变量值由 lookup 提供。
// 每个被引用的变量名（无论是否定义）都会传给 lookup 一次。
func Expand(text string, lookup func(name string) (string, bool)) string {
	if !strings.Contains(text, "$") {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if text[i] != '$' || i+1 >= len(text) {
			b.WriteByte(text[i])
			continue
		}

		next := text[i+1]
		switch {
		case next == '$':
			b.WriteByte('$')
			i++
		case next == '{':
			end := strings.IndexByte(text[i+2:], '}')
			if end < 0 {
				b.WriteString(text[i:])
				return b.String()
			}
			name := text[i+2 : i+2+end]
			if v, ok := lookup(name); ok {
				b.WriteString(v)
			} else {
				b.WriteString(text[i : i+3+end])
			}
			i += 2 + end
		case isNameByte(next):
			j := i + 1
			for j < len(text) && isNameByte(text[j]) {
				j++
			}
			name := text[i+1 : j]
			if v, ok := lookup(name); ok {
				b.WriteString(v)
			} else {
				b.WriteString(text[i:j])
			}
			i = j - 1
		default:
			b.WriteByte('$')
		}
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
