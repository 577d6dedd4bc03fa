// Package installkit 是安装器框架的入口。
package installkit

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocrud/installkit/installer"
)

// ShutdownTimeout 优雅关闭的超时时间
var ShutdownTimeout = 5 * time.Second

// Run 构建并启动安装器运行时，阻塞直到 ctx 结束、收到退出信号或运行时请求退出，
// 然后停止托管服务并释放容器。
func Run(ctx context.Context, opts ...installer.Option) error {
	rt, err := installer.New(opts...)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-rt.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return rt.Stop(shutdownCtx)
}
