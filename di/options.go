package di

import "github.com/gocrud/installkit/logging"

// Option 配置容器。子容器继承父容器的注册策略与日志。
type Option func(*options)

type options struct {
	name   string
	strict bool
	logger logging.Logger
}

func defaultOptions() options {
	return options{
		name:   "root",
		logger: logging.Nop(),
	}
}

// WithName 设置容器名称，用于日志
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithStrictRegistration 重复注册同一个键时返回 ErrDuplicateRegistration，
// 默认策略是静默替换。
func WithStrictRegistration() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithLogger 设置容器日志
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logging.OrNop(logger)
	}
}
