package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrKeyNotFound 配置中不存在该路径
var ErrKeyNotFound = errors.New("config: key not found")

// Configuration 分层配置的只读视图。
// 路径用 : 或 . 分隔层级，"web:addr" 与 "web.addr" 等价。
type Configuration interface {
	// Get 返回标量的字符串形式，不存在时返回空串
	Get(key string) string
	GetWithDefault(key, defaultValue string) string
	GetInt(key string) (int, error)
	GetBool(key string) (bool, error)
	// GetSection 返回子节，不存在时返回空配置
	GetSection(key string) Configuration
	// Bind 把 key 处的值绑定到 target，key 为空时绑定整个配置
	Bind(key string, target any) error
	// GetAll 返回全部数据的副本
	GetAll() map[string]any
}

type configuration struct {
	store *snapshotStore
}

func newConfiguration(data map[string]any) *configuration {
	return &configuration{store: newSnapshotStore(data)}
}

// lookup 在当前快照中按路径取值，路径为空时返回根
func (c *configuration) lookup(path string) (any, bool) {
	var current any = c.store.load().data
	for _, part := range splitPath(path) {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, current != nil
}

func (c *configuration) require(key string) (any, error) {
	v, ok := c.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

func (c *configuration) Get(key string) string {
	v, ok := c.lookup(key)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (c *configuration) GetWithDefault(key, defaultValue string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return defaultValue
}

func (c *configuration) GetInt(key string) (int, error) {
	v, err := c.require(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		// JSON 数字都是 float64，只接受整数值
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("config: %s: %v is not an integer", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("config: %s: %w", key, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("config: %s: cannot use %T as int", key, v)
}

func (c *configuration) GetBool(key string) (bool, error) {
	v, err := c.require(key)
	if err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("config: %s: %w", key, err)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("config: %s: cannot use %T as bool", key, v)
}

func (c *configuration) GetSection(key string) Configuration {
	v, _ := c.lookup(key)
	m, _ := v.(map[string]any)
	return newConfiguration(m)
}

// Bind 通过 JSON 往返绑定，target 的 json 标签即配置键名
func (c *configuration) Bind(key string, target any) error {
	v, err := c.require(key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: encode %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("config: bind %s: %w", key, err)
	}
	return nil
}

func (c *configuration) GetAll() map[string]any {
	out := make(map[string]any)
	mergeMaps(out, c.store.load().data)
	return out
}

// mergeMaps 把 src 深合并进 dst；嵌套 map 总是复制，dst 不与 src 共享
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		child, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		target, ok := dst[k].(map[string]any)
		if !ok {
			target = make(map[string]any, len(child))
			dst[k] = target
		}
		mergeMaps(target, child)
	}
}
