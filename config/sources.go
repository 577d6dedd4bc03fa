package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// fileSource JSON 或 YAML 文件
type fileSource struct {
	path     string
	optional bool
	format   string
}

func (s *fileSource) Name() string { return fmt.Sprintf("%sFile(%s)", s.format, s.path) }

func (s *fileSource) Load() (map[string]any, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if s.optional && errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var data map[string]any
	if s.format == "JSON" {
		err = json.Unmarshal(raw, &data)
	} else {
		err = yaml.Unmarshal(raw, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.format, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// envSource 进程环境变量
type envSource struct {
	prefix string
}

func (s *envSource) Name() string { return fmt.Sprintf("Env(%s)", s.prefix) }

func (s *envSource) Load() (map[string]any, error) {
	data := make(map[string]any)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			putEnv(data, s.prefix, key, value)
		}
	}
	return data, nil
}

// dotEnvSource .env 文件，键的转换规则同环境变量
type dotEnvSource struct {
	path     string
	prefix   string
	optional bool
}

func (s *dotEnvSource) Name() string { return fmt.Sprintf("DotEnv(%s)", s.path) }

func (s *dotEnvSource) Load() (map[string]any, error) {
	values, err := godotenv.Read(s.path)
	if err != nil {
		if s.optional && errors.Is(err, fs.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	data := make(map[string]any)
	for key, value := range values {
		putEnv(data, s.prefix, key, value)
	}
	return data, nil
}

// putEnv 去掉 prefix 后转小写，_ 作为层级分隔；值尝试解析为数字或布尔
func putEnv(data map[string]any, prefix, key, value string) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok || rest == "" {
		return
	}
	setPath(data, strings.Split(strings.ToLower(rest), "_"), parseScalar(value))
}

func parseScalar(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// setPath 按层级写入，中途遇到非 map 的值时放弃
func setPath(data map[string]any, parts []string, value any) {
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, exists := current[part]
		if !exists {
			next = make(map[string]any)
			current[part] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			return
		}
		current = m
	}
	current[parts[len(parts)-1]] = value
}

// memorySource 内存数据
type memorySource struct {
	data map[string]any
}

func (s *memorySource) Name() string { return "InMemory" }

func (s *memorySource) Load() (map[string]any, error) {
	out := make(map[string]any)
	mergeMaps(out, s.data)
	return out, nil
}

// EtcdOptions etcd 配置源选项
type EtcdOptions struct {
	Endpoints []string
	Username  string
	Password  string
	// Prefix 只读取该前缀下的键，键的其余部分以 / 分层
	Prefix      string
	Timeout     time.Duration
	DialTimeout time.Duration
}

// etcdSource 读取前缀下的所有键，/installkit/web/addr 映射为 web:addr。
// 值依次尝试按 JSON、YAML 解析，都失败时作为字符串。
type etcdSource struct {
	opts EtcdOptions
}

func (s *etcdSource) Name() string { return fmt.Sprintf("Etcd(%s)", strings.Join(s.opts.Endpoints, ",")) }

func (s *etcdSource) Load() (map[string]any, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   s.opts.Endpoints,
		Username:    s.opts.Username,
		Password:    s.opts.Password,
		DialTimeout: s.opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	prefix := s.opts.Prefix
	if prefix == "" {
		prefix = "/"
	}
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("read etcd prefix %s: %w", prefix, err)
	}

	data := make(map[string]any)
	for _, kv := range resp.Kvs {
		key := strings.Trim(strings.TrimPrefix(string(kv.Key), s.opts.Prefix), "/")
		if key == "" {
			continue
		}
		setPath(data, strings.Split(key, "/"), decodeValue(kv.Value))
	}
	return data, nil
}

func decodeValue(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	if err := yaml.Unmarshal(raw, &v); err == nil && v != nil {
		return v
	}
	return string(raw)
}
