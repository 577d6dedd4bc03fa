package config

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// ConfigurationSource 一个配置来源，Load 每次都重新读取
type ConfigurationSource interface {
	Load() (map[string]any, error)
	Name() string
}

// ConfigurationBuilder 按添加顺序叠加配置源，后加的覆盖先加的
type ConfigurationBuilder struct {
	mu      sync.RWMutex
	sources []ConfigurationSource
}

// NewConfigurationBuilder 创建配置构建器
func NewConfigurationBuilder() *ConfigurationBuilder {
	return &ConfigurationBuilder{}
}

// Add 添加配置源
func (b *ConfigurationBuilder) Add(source ConfigurationSource) *ConfigurationBuilder {
	b.mu.Lock()
	b.sources = append(b.sources, source)
	b.mu.Unlock()
	return b
}

func isOptional(optional []bool) bool { return len(optional) > 0 && optional[0] }

// AddJsonFile 添加 JSON 文件；optional 为真时文件不存在不算错误
func (b *ConfigurationBuilder) AddJsonFile(path string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&fileSource{path: path, optional: isOptional(optional), format: "JSON"})
}

// AddYamlFile 添加 YAML 文件
func (b *ConfigurationBuilder) AddYamlFile(path string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&fileSource{path: path, optional: isOptional(optional), format: "YAML"})
}

// AddDotEnv 添加 .env 文件，键按环境变量规则转换
func (b *ConfigurationBuilder) AddDotEnv(path string, prefix string, optional ...bool) *ConfigurationBuilder {
	return b.Add(&dotEnvSource{path: path, prefix: prefix, optional: isOptional(optional)})
}

// AddEnvironmentVariables 添加以 prefix 开头的环境变量，INSTALLKIT_WEB_ADDR 映射为 web:addr
func (b *ConfigurationBuilder) AddEnvironmentVariables(prefix string) *ConfigurationBuilder {
	return b.Add(&envSource{prefix: prefix})
}

// AddInMemory 添加内存数据，加载时深拷贝
func (b *ConfigurationBuilder) AddInMemory(data map[string]any) *ConfigurationBuilder {
	return b.Add(&memorySource{data: data})
}

// AddEtcd 添加 etcd 前缀下的键值，未设置的超时取 5 秒
func (b *ConfigurationBuilder) AddEtcd(opts EtcdOptions) *ConfigurationBuilder {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return b.Add(&etcdSource{opts: opts})
}

// Build 加载一次并返回只读配置
func (b *ConfigurationBuilder) Build() (Configuration, error) {
	data, err := b.load()
	if err != nil {
		return nil, err
	}
	return newConfiguration(data), nil
}

// load 依次加载全部配置源；失败的源不会中断其余源，所有错误合并返回
func (b *ConfigurationBuilder) load() (map[string]any, error) {
	b.mu.RLock()
	sources := append([]ConfigurationSource(nil), b.sources...)
	b.mu.RUnlock()

	merged := make(map[string]any)
	var errs error
	for _, source := range sources {
		data, err := source.Load()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("config source %s: %w", source.Name(), err))
			continue
		}
		mergeMaps(merged, data)
	}
	if errs != nil {
		return nil, errs
	}
	return merged, nil
}
