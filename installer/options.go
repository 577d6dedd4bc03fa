package installer

import (
	"context"
	"fmt"
	"reflect"

	"github.com/gocrud/installkit/config"
	"github.com/gocrud/installkit/di"
	"github.com/gocrud/installkit/hosting"
	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/resources"
)

// Option 修改运行时的选项，在 Build 之前应用
type Option func(rt *Runtime) error

// WithConfiguration 配置配置源
func WithConfiguration(configure func(*config.ConfigurationBuilder)) Option {
	return func(rt *Runtime) error {
		configure(rt.configBuilder)
		return nil
	}
}

// WithConfigFile 按扩展名添加 JSON 或 YAML 配置文件
func WithConfigFile(path string, optional bool) Option {
	return func(rt *Runtime) error {
		switch ext := fileExt(path); ext {
		case ".json":
			rt.configBuilder.AddJsonFile(path, optional)
		case ".yaml", ".yml":
			rt.configBuilder.AddYamlFile(path, optional)
		default:
			return fmt.Errorf("unsupported config file %s", path)
		}
		return nil
	}
}

// WithLogging 自定义日志，设置后忽略 logging 配置节
func WithLogging(configure func(*logging.LoggingBuilder)) Option {
	return func(rt *Runtime) error {
		configure(rt.loggingBuilder)
		rt.customLogging = true
		return nil
	}
}

// WithResourceStore 添加资源存储，优先于配置中的存储
func WithResourceStore(stores ...resources.Store) Option {
	return func(rt *Runtime) error {
		rt.stores = append(rt.stores, stores...)
		return nil
	}
}

// WithVariables 设置初始变量，覆盖 variables 配置节中的同名变量
func WithVariables(values map[string]string) Option {
	return func(rt *Runtime) error {
		for k, v := range values {
			rt.variables[k] = v
		}
		return nil
	}
}

// WithConditionType 注册自定义条件类型
func WithConditionType(name string, typ reflect.Type) Option {
	return func(rt *Runtime) error {
		if err := conditionType(typ); err != nil {
			return err
		}
		rt.conditionTypes[name] = typ
		return nil
	}
}

// WithComponent 在根容器中注册组件，impl 的规则同 di.Container.AddComponent
func WithComponent[T any](impl any) Option {
	return func(rt *Runtime) error {
		return rt.Container.AddComponent(di.KeyOf[T](), impl)
	}
}

// WithWatcher 启用条件监视器
func WithWatcher() Option {
	return func(rt *Runtime) error {
		rt.enableWatcher = true
		return nil
	}
}

// WithWebServer 启用 Web API
func WithWebServer() Option {
	return func(rt *Runtime) error {
		rt.enableWeb = true
		return nil
	}
}

// WithHostedService 添加托管服务
func WithHostedService(services ...hosting.HostedService) Option {
	return func(rt *Runtime) error {
		rt.hosted = append(rt.hosted, services...)
		return nil
	}
}

// WithWorker 将阻塞函数注册为托管服务，通过 ctx.Done() 退出
func WithWorker(fn func(ctx context.Context) error) Option {
	return WithHostedService(hosting.ServiceFunc(fn))
}
