// Package hosting 托管后台服务（条件监视器、Web API 等）的启动与停止。
package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/gocrud/installkit/logging"
)

// HostedService 托管服务接口
type HostedService interface {
	// Start 启动服务。该方法应阻塞执行，直到 ctx 被取消或发生错误。
	// 管理器会在独立的 goroutine 中调用此方法。
	Start(ctx context.Context) error

	// Stop 执行额外的清理工作。Start 的 ctx 被取消时服务应已自行退出。
	Stop(ctx context.Context) error
}

// Named 可选接口，提供日志中使用的服务名
type Named interface {
	ServiceName() string
}

// ServiceFunc 把阻塞函数适配为 HostedService
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Start(ctx context.Context) error { return f(ctx) }

func (f ServiceFunc) Stop(context.Context) error { return nil }

func serviceName(svc HostedService, index int) string {
	if n, ok := svc.(Named); ok {
		return n.ServiceName()
	}
	return fmt.Sprintf("%T#%d", svc, index+1)
}

// HostedServiceManager 托管服务管理器
type HostedServiceManager struct {
	services []HostedService
	logger   logging.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewHostedServiceManager 创建托管服务管理器
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	return &HostedServiceManager{
		logger: logging.OrNop(logger).WithCategory("hosting"),
	}
}

// Add 添加托管服务
func (m *HostedServiceManager) Add(service HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, service)
}

// Len 已添加的服务数
func (m *HostedServiceManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.services)
}

// StartAll 并发启动所有服务。服务意外返回错误时写入返回的通道；
// ctx 取消导致的退出不算错误。
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, m.cancel = context.WithCancel(ctx)
	errCh := make(chan error, len(m.services))

	m.logger.Info("正在启动托管服务", logging.F("count", len(m.services)))

	for i, service := range m.services {
		service := service
		name := serviceName(service, i)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()

			m.logger.Debug("托管服务启动", logging.F("service", name))
			err := service.Start(ctx)
			switch {
			case err == nil:
				m.logger.Info("托管服务已完成", logging.F("service", name))
			case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
				m.logger.Debug("托管服务已停止", logging.F("service", name))
			default:
				m.logger.Error("托管服务失败", logging.F("service", name), logging.F("error", err))
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	return errCh
}

// StopAll 取消所有服务的 ctx，逆序并发调用 Stop，并等待 Start 返回。
// 返回所有 Stop 错误的合并结果。
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	services := append([]HostedService(nil), m.services...)
	cancel := m.cancel
	m.mu.RUnlock()

	m.logger.Info("正在停止托管服务", logging.F("count", len(services)))
	if cancel != nil {
		cancel()
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for i := len(services) - 1; i >= 0; i-- {
		svc, name := services[i], serviceName(services[i], i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Stop(ctx); err != nil {
				m.logger.Error("停止托管服务失败", logging.F("service", name), logging.F("error", err))
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// 等待 Start 返回或超时
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("所有托管服务已停止")
	case <-ctx.Done():
		m.logger.Warn("等待托管服务超时")
		errs = multierr.Append(errs, ctx.Err())
	}
	return errs
}

// Wait 等待所有服务的 Start 返回
func (m *HostedServiceManager) Wait() {
	m.wg.Wait()
}
