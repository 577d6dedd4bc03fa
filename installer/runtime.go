// Package installer 组装安装器运行时：配置、日志、变量、资源、规则引擎与托管服务都注册在一个根容器中。
package installer

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/gocrud/installkit/config"
	"github.com/gocrud/installkit/di"
	"github.com/gocrud/installkit/hosting"
	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/platform"
	"github.com/gocrud/installkit/resources"
	"github.com/gocrud/installkit/rules"
	"github.com/gocrud/installkit/variables"
	"github.com/gocrud/installkit/web"
)

// Runtime 安装器运行时
type Runtime struct {
	// Container 根容器，Build 之前可以通过选项注册额外的组件
	Container di.Container
	// Lifecycle 启动、停止钩子
	Lifecycle *Lifecycle
	// Services 托管服务
	Services *hosting.HostedServiceManager

	// ErrorHandler 托管服务意外退出时调用，默认写日志
	ErrorHandler func(err error)

	configBuilder  *config.ConfigurationBuilder
	loggingBuilder *logging.LoggingBuilder
	customLogging  bool
	stores         []resources.Store
	variables      map[string]string
	conditionTypes ConditionTypes
	hosted         []hosting.HostedService
	enableWatcher  bool
	enableWeb      bool

	config *config.ReloadableConfiguration
	logger logging.Logger

	built      bool
	shutdownCh chan struct{}
	shutdown   sync.Once
	closeOnce  sync.Once
}

// NewRuntime 创建未构建的运行时
func NewRuntime() *Runtime {
	return &Runtime{
		Container:      di.NewContainer(di.WithName("installer")),
		Lifecycle:      NewLifecycle(),
		configBuilder:  config.NewConfigurationBuilder(),
		loggingBuilder: logging.NewLoggingBuilder(),
		variables:      make(map[string]string),
		conditionTypes: make(ConditionTypes),
		logger:         logging.Nop(),
		shutdownCh:     make(chan struct{}),
	}
}

// New 创建运行时，应用选项并构建
func New(opts ...Option) (*Runtime, error) {
	rt := NewRuntime()
	if err := rt.Apply(opts...); err != nil {
		rt.Container.Dispose()
		return nil, err
	}
	if err := rt.Build(); err != nil {
		rt.Container.Dispose()
		return nil, err
	}
	return rt, nil
}

// Apply 应用选项
func (rt *Runtime) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return err
		}
	}
	return nil
}

// Build 加载配置、创建日志并注册核心组件。组件都是延迟构造的，
// 第一次解析时才会读取资源或连接外部存储。
func (rt *Runtime) Build() error {
	if rt.built {
		return fmt.Errorf("installer: runtime already built")
	}

	cfg, err := rt.configBuilder.BuildReloadable()
	if err != nil {
		return fmt.Errorf("installer: failed to build configuration: %w", err)
	}
	rt.config = cfg

	var loggingSettings LoggingSettings
	if !rt.customLogging {
		if loggingSettings, err = section(cfg, SectionLogging, LoggingSettings{}); err != nil {
			return err
		}
		rt.loggingBuilder.Configure(loggingSettings)
	}
	factory := rt.loggingBuilder.Build()
	rt.logger = factory.CreateLogger("installer")
	if !rt.customLogging {
		// 重新加载配置时只跟随级别变化，输出方式需要重启
		monitor := config.NewOptionsCache(cfg, SectionLogging, loggingSettings)
		monitor.OnChange(func(s LoggingSettings) {
			if s.Level != "" {
				factory.SetMinimumLevel(logging.ParseLevel(s.Level))
				rt.logger.Info("日志级别已更新", logging.F("level", s.Level))
			}
		})
	}
	rt.Services = hosting.NewHostedServiceManager(rt.logger)
	if rt.ErrorHandler == nil {
		rt.ErrorHandler = func(err error) {
			rt.logger.Error("运行时错误", logging.F("error", err))
		}
	}

	if err := rt.register(factory); err != nil {
		return err
	}
	if err := rt.Container.Verify(); err != nil {
		return fmt.Errorf("installer: %w", err)
	}

	rt.registerHooks()
	rt.built = true
	rt.logger.Info("安装器运行时已构建")
	return nil
}

func (rt *Runtime) register(factory logging.LoggerFactory) error {
	c := rt.Container
	root := c

	return multierr.Combine(
		di.Add[logging.LoggerFactory](c, factory),
		di.Add[logging.Logger](c, rt.logger),
		di.Add[*config.ReloadableConfiguration](c, rt.config),
		di.Add[config.Configuration](c, di.KeyOf[*config.ReloadableConfiguration]()),
		di.Add[di.Container](c, c),
		di.AddProvider[platform.Platform](c, providePlatform),
		di.AddProvider[*variables.Store](c, newVariablesProvider(rt.variables)),
		di.Add[*InstallData](c, NewInstallData),
		di.AddProvider[*resources.Resources](c, newResourcesProvider(rt.stores)),
		di.Add[*rules.ConditionContainer](c, func() *rules.ConditionContainer {
			return rules.NewConditionContainer(root)
		}),
		di.Add[ConditionTypes](c, rt.conditionTypes),
		di.AddProviderType[*rules.Engine, RulesProvider](c),
		di.Add[*rules.Watcher](c, provideWatcher),
		di.Add[*web.Server](c, provideWebServer),
		di.Add[*hosting.HostedServiceManager](c, rt.Services),
	)
}

func provideWatcher(engine *rules.Engine, cfg config.Configuration, logger logging.Logger) (*rules.Watcher, error) {
	s, err := section(cfg, SectionWatcher, WatcherSettings{WatcherOptions: rules.NewDefaultWatcherOptions()})
	if err != nil {
		return nil, err
	}
	return rules.NewWatcher(engine, s.WatcherOptions, logger), nil
}

func provideWebServer(engine *rules.Engine, cfg config.Configuration, logger logging.Logger) (*web.Server, error) {
	s, err := section(cfg, SectionWeb, WebSettings{Options: web.NewDefaultOptions()})
	if err != nil {
		return nil, err
	}
	return web.NewServer(engine, s.Options, logger), nil
}

// registerHooks 启动时解析规则引擎与启用的托管服务，停止时逆序停止
func (rt *Runtime) registerHooks() {
	rt.Lifecycle.OnStart(func(ctx context.Context) error {
		if _, err := rt.Engine(); err != nil {
			return err
		}

		watcherSettings, err := section(rt.config, SectionWatcher, WatcherSettings{})
		if err != nil {
			return err
		}
		if rt.enableWatcher || watcherSettings.Enabled {
			w, err := di.Resolve[*rules.Watcher](rt.Container)
			if err != nil {
				return err
			}
			rt.Services.Add(w)
		}

		webSettings, err := section(rt.config, SectionWeb, WebSettings{})
		if err != nil {
			return err
		}
		if rt.enableWeb || webSettings.Enabled {
			s, err := di.Resolve[*web.Server](rt.Container)
			if err != nil {
				return err
			}
			rt.Services.Add(s)
		}

		for _, svc := range rt.hosted {
			rt.Services.Add(svc)
		}

		errCh := rt.Services.StartAll(ctx)
		go func() {
			for {
				select {
				case err := <-errCh:
					rt.ErrorHandler(err)
					rt.Shutdown()
				case <-rt.shutdownCh:
					return
				}
			}
		}()
		return nil
	})
	rt.Lifecycle.OnStop(rt.Services.StopAll)

	s, err := section(rt.config, SectionInstaller, InstallerSettings{})
	if err == nil && len(s.WatchConfig) > 0 {
		rt.config.OnReload(func() {
			rt.logger.Info("配置已重新加载", logging.F("generation", rt.config.Generation()))
		})
		rt.Lifecycle.OnStart(func(ctx context.Context) error {
			return rt.config.Watch(ctx, func(err error) {
				rt.logger.Warn("配置重新加载失败", logging.F("error", err))
			}, s.WatchConfig...)
		})
	}
}

// Start 执行启动钩子
func (rt *Runtime) Start(ctx context.Context) error {
	if !rt.built {
		return fmt.Errorf("installer: runtime not built")
	}
	return rt.Lifecycle.Start(ctx)
}

// Stop 执行停止钩子
func (rt *Runtime) Stop(ctx context.Context) error {
	return rt.Lifecycle.Stop(ctx)
}

// Close 释放根容器。规则引擎与资源存储由容器关闭。
func (rt *Runtime) Close() {
	rt.closeOnce.Do(func() {
		rt.Shutdown()
		rt.Container.Dispose()
	})
}

// Shutdown 请求退出
func (rt *Runtime) Shutdown() {
	rt.shutdown.Do(func() { close(rt.shutdownCh) })
}

// Done 请求退出后关闭
func (rt *Runtime) Done() <-chan struct{} {
	return rt.shutdownCh
}

// Logger 返回运行时日志记录器
func (rt *Runtime) Logger() logging.Logger { return rt.logger }

// Configuration 返回配置
func (rt *Runtime) Configuration() *config.ReloadableConfiguration { return rt.config }

// Engine 解析规则引擎
func (rt *Runtime) Engine() (*rules.Engine, error) {
	return di.Resolve[*rules.Engine](rt.Container)
}

// InstallData 解析安装数据
func (rt *Runtime) InstallData() (*InstallData, error) {
	return di.Resolve[*InstallData](rt.Container)
}

// Variables 解析变量存储
func (rt *Runtime) Variables() (*variables.Store, error) {
	return di.Resolve[*variables.Store](rt.Container)
}

// Resolve 从根容器解析 T
func Resolve[T any](rt *Runtime) (T, error) {
	return di.Resolve[T](rt.Container)
}

// conditionType 检查 typ 可作为条件类型
func conditionType(typ reflect.Type) error {
	if typ == nil {
		return fmt.Errorf("%w: nil condition type", di.ErrInvalidBinding)
	}
	condition := di.TypeOf[rules.Condition]()
	if typ.Implements(condition) || (typ.Kind() == reflect.Struct && reflect.PointerTo(typ).Implements(condition)) {
		return nil
	}
	return fmt.Errorf("%w: %s does not implement rules.Condition", di.ErrTypeMismatch, typ)
}

func fileExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
