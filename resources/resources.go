// Package resources 安装器资源（条件文档、序列化的条件表等）的读取。
//
// 资源按名称从一组 Store 中查找，先添加的优先。
package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/gocrud/installkit/document"
	"github.com/gocrud/installkit/logging"
)

// ErrNotFound 资源不存在
var ErrNotFound = errors.New("resources: not found")

// Store 资源存储
type Store interface {
	Name() string
	// Get 读取资源，不存在时返回 ErrNotFound
	Get(ctx context.Context, name string) ([]byte, error)
}

// WritableStore 可写的资源存储
type WritableStore interface {
	Store
	Put(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

// Resources 按顺序查找的资源链
type Resources struct {
	mu     sync.RWMutex
	stores []Store
	logger logging.Logger
}

// New 创建资源链
func New(logger logging.Logger, stores ...Store) *Resources {
	return &Resources{
		stores: stores,
		logger: logging.OrNop(logger).WithCategory("resources"),
	}
}

// Add 追加存储，优先级低于已有的存储
func (r *Resources) Add(store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = append(r.stores, store)
}

// Stores 返回当前的存储列表
func (r *Resources) Stores() []Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Store(nil), r.stores...)
}

// Get 依次查找资源。某个存储出错时记录并继续查找下一个；
// 都没有找到时，若有存储出错则返回合并的错误，否则返回 ErrNotFound。
func (r *Resources) Get(ctx context.Context, name string) ([]byte, error) {
	var errs error
	for _, store := range r.Stores() {
		data, err := store.Get(ctx, name)
		if err == nil {
			r.logger.Debug("找到资源", logging.F("name", name), logging.F("store", store.Name()))
			return data, nil
		}
		if errors.Is(err, ErrNotFound) {
			continue
		}
		r.logger.Warn("资源存储读取失败",
			logging.F("name", name), logging.F("store", store.Name()), logging.F("error", err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", store.Name(), err))
	}
	if errs != nil {
		return nil, errs
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Document 读取并解析第一个存在的文档，格式按扩展名判断。返回找到的资源名。
func (r *Resources) Document(ctx context.Context, names ...string) (*document.Element, string, error) {
	for _, name := range names {
		data, err := r.Get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, name, err
		}
		root, err := document.Parse(name, data)
		if err != nil {
			return nil, name, fmt.Errorf("parse %s: %w", name, err)
		}
		return root, name, nil
	}
	return nil, "", fmt.Errorf("%w: %s", ErrNotFound, strings.Join(names, ", "))
}

// ElementMap 读取序列化的条件表（id -> 元素）。
// .yaml/.yml 资源按 YAML 解码，其余按 JSON 解码。
func (r *Resources) ElementMap(ctx context.Context, name string) (map[string]*document.Element, error) {
	data, err := r.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return DecodeElementMap(name, data)
}

// DecodeElementMap 解码序列化的条件表
func DecodeElementMap(name string, data []byte) (map[string]*document.Element, error) {
	var out map[string]*document.Element
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err := yaml.Unmarshal(data, &out)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return out, nil
}

// EncodeElementMap 以 JSON 序列化条件表
func EncodeElementMap(elements map[string]*document.Element) ([]byte, error) {
	return json.MarshalIndent(elements, "", "  ")
}

// Close 关闭所有实现了 io.Closer 的存储
func (r *Resources) Close() error {
	var errs error
	for _, store := range r.Stores() {
		if c, ok := store.(io.Closer); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}
