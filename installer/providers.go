package installer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"go.uber.org/multierr"
	"gorm.io/driver/sqlite"

	"github.com/gocrud/installkit/config"
	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/platform"
	"github.com/gocrud/installkit/resources"
	"github.com/gocrud/installkit/rules"
	"github.com/gocrud/installkit/variables"
)

// ConditionTypes 自定义条件类型：类型名 -> 实现类型
type ConditionTypes map[string]reflect.Type

// providePlatform installer.platform 配置优先，否则使用当前平台
func providePlatform(cfg config.Configuration) (platform.Platform, error) {
	s, err := section(cfg, SectionInstaller, InstallerSettings{})
	if err != nil {
		return platform.Platform{}, err
	}
	if s.Platform == "" {
		return platform.Current(), nil
	}
	return platform.Parse(s.Platform)
}

// newVariablesProvider 从 variables 节填充变量，再写入选项给出的值
func newVariablesProvider(initial map[string]string) func(config.Configuration) *variables.Store {
	return func(cfg config.Configuration) *variables.Store {
		store := variables.NewStore()
		store.LoadFrom(cfg, SectionVariables)
		if len(initial) > 0 {
			store.SetAll(initial)
		}
		return store
	}
}

// newResourcesProvider 先放入选项添加的存储，再按 resources 节创建其余存储。
// 任一存储创建失败时关闭已创建的存储并返回合并的错误。
func newResourcesProvider(extra []resources.Store) func(config.Configuration, logging.Logger) (*resources.Resources, error) {
	return func(cfg config.Configuration, logger logging.Logger) (*resources.Resources, error) {
		s, err := section(cfg, SectionResources, ResourceSettings{})
		if err != nil {
			return nil, err
		}

		res := resources.New(logger, extra...)
		for _, dir := range s.Dirs {
			res.Add(resources.NewDir(dir))
		}

		var errs error
		add := func(store resources.Store, err error) {
			if err != nil {
				errs = multierr.Append(errs, err)
				return
			}
			res.Add(store)
		}

		if d := s.Database; d != nil {
			add(newDatabaseStore(d))
		}
		if r := s.Redis; r != nil {
			opts := resources.NewDefaultRedisOptions("resources")
			opts.Addr = r.Addr
			opts.Password = r.Password
			opts.DB = r.DB
			if r.KeyPrefix != "" {
				opts.KeyPrefix = r.KeyPrefix
			}
			add(resources.NewRedisStore(*opts))
		}
		if m := s.Mongo; m != nil {
			opts := resources.NewDefaultMongoOptions("resources", m.Uri)
			opts.Username = m.Username
			opts.Password = m.Password
			if m.Database != "" {
				opts.Database = m.Database
			}
			if m.Collection != "" {
				opts.Collection = m.Collection
			}
			add(resources.NewMongoStore(*opts))
		}
		if e := s.Etcd; e != nil {
			opts := resources.NewDefaultEtcdOptions("resources")
			if len(e.Endpoints) > 0 {
				opts.Endpoints = e.Endpoints
			}
			opts.Username = e.Username
			opts.Password = e.Password
			if e.Prefix != "" {
				opts.Prefix = e.Prefix
			}
			add(resources.NewEtcdStore(*opts))
		}

		if errs != nil {
			_ = res.Close()
			return nil, fmt.Errorf("failed to create resource stores: %w", errs)
		}
		return res, nil
	}
}

func newDatabaseStore(s *DatabaseSettings) (resources.Store, error) {
	if s.Driver != "" && s.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported resource database driver %q", s.Driver)
	}
	opts := resources.NewDefaultDatabaseOptions("resources", sqlite.Open(s.DSN))
	if s.Table != "" {
		opts.Table = s.Table
	}
	return resources.NewDatabaseStore(*opts)
}

// RulesProvider 创建规则引擎：注册自定义条件类型后，
// 优先读取序列化的条件表，其次读取条件文档，都不存在时返回空引擎。
type RulesProvider struct {
	Config     config.Configuration      `di:""`
	Resources  *resources.Resources      `di:""`
	Variables  *variables.Store          `di:""`
	Conditions *rules.ConditionContainer `di:""`
	Logger     logging.Logger            `di:""`
	Types      ConditionTypes            `di:"?"`
}

// 读取规则资源的超时
const loadTimeout = 30 * time.Second

func (p *RulesProvider) Provide() (*rules.Engine, error) {
	settings, err := section(p.Config, SectionRules, NewDefaultRulesSettings())
	if err != nil {
		return nil, err
	}

	logger := p.Logger.WithCategory("rules")
	engine := rules.NewEngine(p.Variables, p.Conditions, rules.WithLogger(logger))
	if err := p.load(engine, settings, logger); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return engine, nil
}

func (p *RulesProvider) load(engine *rules.Engine, settings RulesSettings, logger logging.Logger) error {
	names := make([]string, 0, len(p.Types))
	for name := range p.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := engine.RegisterConditionType(name, p.Types[name]); err != nil {
			return fmt.Errorf("register condition type %s: %w", name, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	for _, name := range settings.Maps {
		elements, err := p.Resources.ElementMap(ctx, name)
		if errors.Is(err, resources.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read condition map %s: %w", name, err)
		}
		conditions, err := engine.BuildConditionMap(elements)
		if err != nil {
			return fmt.Errorf("build condition map %s: %w", name, err)
		}
		if err := engine.ReadConditionMap(conditions); err != nil {
			return fmt.Errorf("load condition map %s: %w", name, err)
		}
		logger.Info("已加载条件表", logging.F("resource", name), logging.F("count", len(conditions)))
		return nil
	}

	if len(settings.Documents) == 0 {
		return nil
	}
	root, name, err := p.Resources.Document(ctx, settings.Documents...)
	if errors.Is(err, resources.ErrNotFound) {
		logger.Info("未找到条件资源，使用空规则集")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read conditions: %w", err)
	}
	if err := engine.AnalyzeDocument(root); err != nil {
		return fmt.Errorf("load conditions %s: %w", name, err)
	}
	logger.Info("已加载条件文档", logging.F("resource", name))
	return nil
}
