package installer

import (
	"fmt"

	"github.com/gocrud/installkit/config"
	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/rules"
	"github.com/gocrud/installkit/web"
)

// 配置节名称
const (
	SectionInstaller = "installer"
	SectionLogging   = "logging"
	SectionVariables = "variables"
	SectionResources = "resources"
	SectionRules     = "rules"
	SectionWatcher   = "watcher"
	SectionWeb       = "web"
)

// InstallerSettings installer 节
type InstallerSettings struct {
	// Platform 覆盖当前平台，格式 os/arch，如 windows/amd64
	Platform string `json:"platform"`
	// WatchConfig 监听配置文件变化并重新加载
	WatchConfig []string `json:"watchConfig"`
}

// LoggingSettings logging 节
type LoggingSettings = logging.Settings

// DatabaseSettings 资源数据库，目前支持 sqlite
type DatabaseSettings struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Table  string `json:"table"`
}

// RedisSettings 资源 Redis
type RedisSettings struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"keyPrefix"`
}

// MongoSettings 资源 MongoDB
type MongoSettings struct {
	Uri        string `json:"uri"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// EtcdSettings 资源 etcd
type EtcdSettings struct {
	Endpoints []string `json:"endpoints"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Prefix    string   `json:"prefix"`
}

// ResourceSettings resources 节。存储按 dirs、database、redis、mongo、etcd 的顺序查找，
// 都排在通过 WithResourceStore 添加的存储之后。
type ResourceSettings struct {
	Dirs     []string          `json:"dirs"`
	Database *DatabaseSettings `json:"database"`
	Redis    *RedisSettings    `json:"redis"`
	Mongo    *MongoSettings    `json:"mongo"`
	Etcd     *EtcdSettings     `json:"etcd"`
}

// RulesSettings rules 节
type RulesSettings struct {
	// Maps 序列化条件表的资源名，按顺序取第一个存在的
	Maps []string `json:"maps"`
	// Documents 条件文档的资源名，仅在没有条件表时读取
	Documents []string `json:"documents"`
}

// NewDefaultRulesSettings 默认资源名
func NewDefaultRulesSettings() RulesSettings {
	return RulesSettings{
		Maps:      []string{"rules.json", "rules.yaml"},
		Documents: []string{"conditions.xml", "conditions.yaml", "conditions.yml", "conditions.json"},
	}
}

// WatcherSettings watcher 节
type WatcherSettings struct {
	Enabled bool `json:"enabled"`
	rules.WatcherOptions
}

// WebSettings web 节
type WebSettings struct {
	Enabled bool `json:"enabled"`
	web.Options
}

// section 读取配置节；节不存在时返回 defaults，存在但无法绑定时返回错误
func section[T any](cfg config.Configuration, name string, defaults T) (T, error) {
	if len(cfg.GetSection(name).GetAll()) == 0 {
		return defaults, nil
	}
	v, err := config.LoadOr(cfg, name, defaults)
	if err != nil {
		return defaults, fmt.Errorf("invalid %s settings: %w", name, err)
	}
	return v, nil
}
