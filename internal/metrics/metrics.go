package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kestrel/internal/event"
)

// 中文说明：
// 指标集合。周期结局直接由代理观测；事件类指标通过 event.Sink 旁路
// 收集，交易循环对指标层零感知。

type Set struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	rejections    *prometheus.CounterVec
	trades        *prometheus.CounterVec
	freshness     prometheus.Counter
	recovery      *prometheus.GaugeVec
	swept         prometheus.Counter
}

func New() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_cycles_total",
				Help: "感知周期计数，按结局分列",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kestrel_cycle_duration_seconds",
				Help:    "单个周期耗时",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_risk_rejections_total",
				Help: "风控拒绝计数，按原因分列",
			},
			[]string{"reason"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_trades_total",
				Help: "执行结果计数 (filled|failed)",
			},
			[]string{"result"},
		),
		freshness: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_data_freshness_failures_total",
				Help: "数据新鲜度失败次数",
			},
		),
		recovery: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kestrel_recovery_status",
				Help: "启动恢复结果指示 (complete/failed 两条序列取 0/1)",
			},
			[]string{"result"},
		),
		swept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_reservations_swept_total",
				Help: "被周期清扫释放的过期资金预留数",
			},
		),
	}
	s.registry.MustRegister(s.cycles, s.cycleDuration, s.rejections, s.trades, s.freshness, s.recovery, s.swept)
	return s
}

// Handler /metrics 的 HTTP 处理器。
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// ObserveCycle 实现 agent.CycleObserver。
func (s *Set) ObserveCycle(outcome string, elapsed time.Duration) {
	s.cycles.WithLabelValues(outcome).Inc()
	s.cycleDuration.Observe(elapsed.Seconds())
}

// AddSwept 记录一次清扫释放的预留数。
func (s *Set) AddSwept(n int) {
	if n > 0 {
		s.swept.Add(float64(n))
	}
}

// Publish 实现 event.Sink，把事件映射到计数器。
func (s *Set) Publish(evt event.Event) {
	switch evt.Type {
	case event.RiskRejected:
		s.rejections.WithLabelValues(evt.Reason).Inc()
	case event.TradeExecuted:
		s.trades.WithLabelValues("filled").Inc()
	case event.TradeFailed:
		s.trades.WithLabelValues("failed").Inc()
	case event.DataFreshnessFailed:
		s.freshness.Inc()
	case event.RecoveryComplete:
		s.recovery.WithLabelValues("complete").Set(1)
		s.recovery.WithLabelValues("failed").Set(0)
	case event.RecoveryFailed:
		s.recovery.WithLabelValues("complete").Set(0)
		s.recovery.WithLabelValues("failed").Set(1)
	}
}
