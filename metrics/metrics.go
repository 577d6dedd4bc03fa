package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 容器解析
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "installkit_container_resolutions_total",
			Help: "Total number of component resolutions by outcome",
		},
		[]string{"outcome"},
	)

	constructionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "installkit_container_construction_duration_seconds",
			Help:    "Time spent constructing components",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	activeContainers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "installkit_containers_active",
			Help: "Number of containers that are not yet disposed",
		},
	)

	// 条件引擎
	evaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "installkit_rules_evaluations_total",
			Help: "Total number of condition evaluations that were not served from cache",
		},
	)

	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "installkit_rules_cache_hits_total",
			Help: "Total number of condition cache hits",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "installkit_rules_cache_misses_total",
			Help: "Total number of condition cache misses",
		},
	)

	invalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "installkit_rules_invalidations_total",
			Help: "Total number of cached condition values dropped after a variable change",
		},
	)

	conditionsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "installkit_rules_conditions",
			Help: "Number of conditions registered in the rules engine",
		},
	)

	// HTTP
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "installkit_http_requests_total",
			Help: "Total number of API requests processed",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "installkit_http_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// 解析结果标签
const (
	OutcomeCached      = "cached"
	OutcomeConstructed = "constructed"
	OutcomeParent      = "parent"
	OutcomeAbsent      = "absent"
	OutcomeFailed      = "failed"
)

// RecordResolution 记录一次组件解析
func RecordResolution(outcome string) {
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveConstruction 记录一次组件构造耗时
func ObserveConstruction(d time.Duration) {
	constructionDuration.Observe(d.Seconds())
}

// ContainerCreated 容器创建时调用
func ContainerCreated() { activeContainers.Inc() }

// ContainerDisposed 容器释放时调用
func ContainerDisposed() { activeContainers.Dec() }

// RecordEvaluation 记录一次条件求值
func RecordEvaluation() { evaluationsTotal.Inc() }

// RecordCacheHit 记录条件缓存命中
func RecordCacheHit() { cacheHits.Inc() }

// RecordCacheMiss 记录条件缓存未命中
func RecordCacheMiss() { cacheMisses.Inc() }

// RecordInvalidations 记录一次变量变更导致失效的条件数量
func RecordInvalidations(n int) {
	if n > 0 {
		invalidationsTotal.Add(float64(n))
	}
}

// SetConditions 设置当前已注册的条件数量
func SetConditions(n int) {
	conditionsLoaded.Set(float64(n))
}

// RecordRequest 记录一次 API 请求
func RecordRequest(method, route string, status int, duration time.Duration) {
	requestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
