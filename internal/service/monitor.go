package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Monitor 监控指标：连接数、实时事件、错误统计
type Monitor struct {
	Connections    prometheus.Gauge
	OnlineUsers    prometheus.Gauge
	Events         *prometheus.CounterVec
	EventErrors    *prometheus.CounterVec
	Broadcasts     prometheus.Counter
	RateLimited    prometheus.Counter
	PresenceErrors prometheus.Counter
	HTTPErrors     *prometheus.CounterVec
}

// NewMonitor 创建并注册指标，reg 为 nil 时不注册（测试用）
func NewMonitor(reg prometheus.Registerer) *Monitor {
	m := &Monitor{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mentorship",
			Subsystem: "realtime",
			Name:      "connections",
			Help:      "Currently registered realtime connections.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mentorship",
			Subsystem: "realtime",
			Name:      "online_users",
			Help:      "Users with at least one live connection.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentorship",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Inbound realtime events by name.",
		}, []string{"event"}),
		EventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentorship",
			Subsystem: "realtime",
			Name:      "event_errors_total",
			Help:      "Inbound realtime events rejected, by name and error kind.",
		}, []string{"event", "kind"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mentorship",
			Subsystem: "realtime",
			Name:      "room_emits_total",
			Help:      "Room broadcasts issued.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mentorship",
			Subsystem: "realtime",
			Name:      "rate_limited_total",
			Help:      "Inbound events dropped by the per-connection limiter.",
		}),
		PresenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mentorship",
			Subsystem: "realtime",
			Name:      "presence_errors_total",
			Help:      "Failed presence transitions.",
		}),
		HTTPErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mentorship",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "REST errors by status code.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Connections,
			m.OnlineUsers,
			m.Events,
			m.EventErrors,
			m.Broadcasts,
			m.RateLimited,
			m.PresenceErrors,
			m.HTTPErrors,
		)
	}
	return m
}
