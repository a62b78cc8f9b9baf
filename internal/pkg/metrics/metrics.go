// Package metrics 定义进程级的 prometheus 指标和 HTTP 指标中间件。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// FunnelEvents 按阶段统计召回漏斗事件: created / clicked / claimed / written_off / expired
	FunnelEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_funnel_events_total",
			Help: "Recall funnel transitions by stage",
		},
		[]string{"stage"},
	)

	// SMSDispatched 按结果统计短信发送条数
	SMSDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_sms_dispatched_total",
			Help: "SMS recipients submitted to the provider by outcome",
		},
		[]string{"outcome"},
	)

	SMSDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recall_sms_dispatch_duration_seconds",
			Help:    "Latency of one provider batch call",
			Buckets: prometheus.DefBuckets,
		},
	)
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap 让 http.ResponseController 和 websocket 升级拿到底层 writer
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Middleware 记录请求数、耗时和并发数。路由标签使用 ServeMux 匹配到的模式，避免高基数。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(rec.status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
