package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "streambreakout"

// 事件来源标签
const (
	SourceWS    = "ws"
	SourceAdmin = "admin"
	SourceAuto  = "auto"
)

// Metrics 会话运行期的关键指标（用于监控与调试）；每个实例独立注册表，测试可并行创建
type Metrics struct {
	registry *prometheus.Registry

	StreamEvents     *prometheus.CounterVec // 已计入的直播事件（type, source）
	RejectedEvents   *prometheus.CounterVec // 被拒绝的入站消息（reason）
	Outcomes         *prometheus.CounterVec // 客户端上报的游戏结果（type）
	UpgradesUnlocked *prometheus.CounterVec // 升级解锁次数（upgrade）
	Broadcasts       prometheus.Counter     // 广播消息数
	SendDropped      prometheus.Counter     // 因客户端发送队列满被丢弃的帧
	InboxDropped     prometheus.Counter     // 因会话收件箱满被丢弃的命令
	CommandPanics    prometheus.Counter     // 命令处理中恢复的 panic
	ConnectedClients prometheus.Gauge
	CommandDuration  prometheus.Histogram // 单条命令耗时
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "stream_events_total",
			Help: "Stream events accepted into the counters.",
		}, []string{"type", "source"}),
		RejectedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "rejected_messages_total",
			Help: "Inbound messages dropped before touching state.",
		}, []string{"reason"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "game_outcomes_total",
			Help: "Game outcomes reported by clients.",
		}, []string{"type"}),
		UpgradesUnlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "upgrades_unlocked_total",
			Help: "Community upgrade unlocks.",
		}, []string{"upgrade"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "broadcasts_total",
			Help: "Messages fanned out to all clients.",
		}),
		SendDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "send_dropped_total",
			Help: "Frames dropped because a client send queue was full.",
		}),
		InboxDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "inbox_dropped_total",
			Help: "Commands dropped because the session inbox was full.",
		}),
		CommandPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "command_panics_total",
			Help: "Panics recovered while handling session commands.",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "connected_clients",
			Help: "Currently connected websocket clients.",
		}),
		CommandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "command_duration_seconds",
			Help:    "Time spent handling one session command.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}
	m.registry.MustRegister(
		m.StreamEvents, m.RejectedEvents, m.Outcomes, m.UpgradesUnlocked,
		m.Broadcasts, m.SendDropped, m.InboxDropped, m.CommandPanics,
		m.ConnectedClients, m.CommandDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler GET /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
