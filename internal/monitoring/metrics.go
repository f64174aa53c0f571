package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studio/backend/internal/domain"
)

// Metrics 监控指标，注册在独立的 Registry 上
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 留言指标
	MessagesCreated      prometheus.Counter
	MessageStatusChanges *prometheus.CounterVec
	MessagesDeleted      prometheus.Counter

	// 联系表单限流
	ContactRateLimited prometheus.Counter

	// 通知投递
	Notifications *prometheus.CounterVec

	// 后台实时连接
	WebSocketClients prometheus.Gauge

	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	startedAt := time.Now()
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "studio_uptime_seconds",
			Help: "Seconds since the process started",
		},
		func() float64 { return time.Since(startedAt).Seconds() },
	)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "studio_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MessagesCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studio_messages_created_total",
				Help: "Total number of contact messages created",
			},
		),

		MessageStatusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_messages_status_changes_total",
				Help: "Total number of message status updates by target status",
			},
			[]string{"status"},
		),

		MessagesDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studio_messages_deleted_total",
				Help: "Total number of contact messages deleted",
			},
		),

		ContactRateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studio_contact_rate_limited_total",
				Help: "Total number of contact submissions rejected by the rate limiter",
			},
		),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studio_notifications_total",
				Help: "Total number of new-message notifications by channel and result",
			},
			[]string{"channel", "result"},
		),

		WebSocketClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "studio_websocket_clients",
				Help: "Number of connected admin websocket clients",
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "studio_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimited 记录被限流的联系表单提交
func (m *Metrics) RecordRateLimited() {
	m.ContactRateLimited.Inc()
}

// RecordNotification 记录通知投递结果，result 为 sent/failed/dropped
func (m *Metrics) RecordNotification(channel, result string) {
	m.Notifications.WithLabelValues(channel, result).Inc()
}

// SetWebSocketClients 更新在线连接数
func (m *Metrics) SetWebSocketClients(count int) {
	m.WebSocketClients.Set(float64(count))
}

// OnMessageEvent 根据留言事件更新业务计数
func (m *Metrics) OnMessageEvent(_ context.Context, event domain.MessageEvent) {
	switch event.Type {
	case domain.EventMessageCreated:
		m.MessagesCreated.Inc()
	case domain.EventMessageUpdated:
		m.MessageStatusChanges.WithLabelValues(string(event.Message.Status)).Inc()
	case domain.EventMessageDeleted:
		m.MessagesDeleted.Inc()
	}
}

// Registry 返回指标注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
