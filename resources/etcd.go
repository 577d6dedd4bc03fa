package resources

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdOptions etcd 存储配置选项
type EtcdOptions struct {
	Name           string        // 存储名称
	Endpoints      []string      // etcd 服务器地址列表
	DialTimeout    time.Duration // 连接超时时间
	RequestTimeout time.Duration // 单次请求超时时间
	Username       string        // 用户名（可选）
	Password       string        // 密码（可选）
	Prefix         string        // 键前缀
}

// NewDefaultEtcdOptions 创建默认配置
func NewDefaultEtcdOptions(name string) *EtcdOptions {
	return &EtcdOptions{
		Name:           name,
		Endpoints:      []string{"localhost:2379"},
		DialTimeout:    5 * time.Second,
		RequestTimeout: 3 * time.Second,
		Prefix:         "/installkit/resources/",
	}
}

// Validate 验证配置
func (o *EtcdOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("etcd store name is required")
	}
	if len(o.Endpoints) == 0 {
		return fmt.Errorf("etcd endpoints are required")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("etcd dial timeout must be positive")
	}
	return nil
}

// EtcdStore 以 etcd 键值保存资源
type EtcdStore struct {
	name    string
	prefix  string
	timeout time.Duration
	client  *clientv3.Client
}

var _ WritableStore = (*EtcdStore)(nil)

// NewEtcdStore 创建 etcd 客户端
func NewEtcdStore(opts EtcdOptions) (*EtcdStore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	config := clientv3.Config{
		Endpoints:   opts.Endpoints,
		DialTimeout: opts.DialTimeout,
	}
	if opts.Username != "" {
		config.Username = opts.Username
		config.Password = opts.Password
	}

	client, err := clientv3.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	return &EtcdStore{
		name:    opts.Name,
		prefix:  opts.Prefix,
		timeout: opts.RequestTimeout,
		client:  client,
	}, nil
}

func (s *EtcdStore) Name() string { return "etcd:" + s.name }

func (s *EtcdStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *EtcdStore) Get(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Get(ctx, s.prefix+name)
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

func (s *EtcdStore) Put(ctx context.Context, name string, data []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.client.Put(ctx, s.prefix+name, string(data))
	return err
}

func (s *EtcdStore) Delete(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.client.Delete(ctx, s.prefix+name)
	return err
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
