// Package web 提供远程界面使用的 HTTP API：查询条件、求值、读写变量以及 Prometheus 指标。
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/metrics"
	"github.com/gocrud/installkit/rules"
)

// Options Web 服务选项
type Options struct {
	Addr string `json:"addr"`
	// Mode gin 模式：release、debug、test
	Mode string `json:"mode"`
	// Metrics 是否暴露 /metrics
	Metrics bool `json:"metrics"`
}

// NewDefaultOptions 默认选项
func NewDefaultOptions() Options {
	return Options{Addr: ":8080", Mode: gin.ReleaseMode, Metrics: true}
}

// Controller 控制器接口
type Controller interface {
	// MountRoutes 注册路由
	MountRoutes(router gin.IRouter)
}

// Server 基于 gin 的 API 服务，实现 hosting.HostedService
type Server struct {
	engine *gin.Engine
	logger logging.Logger

	mu     sync.Mutex
	addr   string
	server *http.Server
}

// NewServer 创建服务并注册条件、变量控制器
func NewServer(ruleEngine *rules.Engine, opts Options, logger logging.Logger) *Server {
	logger = logging.OrNop(logger).WithCategory("web")
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.Addr == "" {
		opts.Addr = NewDefaultOptions().Addr
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestMetrics(), requestLogger(logger))

	s := &Server{engine: engine, logger: logger, addr: opts.Addr}

	api := engine.Group("/api")
	s.Mount(api,
		&conditionsController{engine: ruleEngine},
		&variablesController{engine: ruleEngine},
	)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.Metrics {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return s
}

// Mount 注册额外的控制器
func (s *Server) Mount(router gin.IRouter, controllers ...Controller) {
	for _, ctrl := range controllers {
		ctrl.MountRoutes(router)
		s.logger.Debug("已挂载控制器路由", logging.F("controller", fmt.Sprintf("%T", ctrl)))
	}
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler { return s.engine }

// Address 返回监听地址，Start 之后为实际地址
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ServiceName 托管服务名
func (s *Server) ServiceName() string { return "web" }

// Start 监听并阻塞直到 ctx 结束或服务出错
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address())
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", s.Address(), err)
	}

	server := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.server = server
	s.mu.Unlock()

	s.logger.Info("Web 服务已启动", logging.F("address", ln.Addr().String()))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Web 服务出错", logging.F("error", err))
		return err
	}
	return nil
}

// Stop 优雅关闭
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Web 服务优雅关闭失败", logging.F("error", err))
		return err
	}
	s.logger.Info("Web 服务已停止")
	return nil
}

// requestMetrics 记录请求数与耗时，路由为空时记为 unmatched
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func requestLogger(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("请求",
			logging.F("method", c.Request.Method),
			logging.F("path", c.Request.URL.Path),
			logging.F("status", c.Writer.Status()),
			logging.F("duration", time.Since(start)))
	}
}
