package diag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "revealer"

// Metrics 汇总运行期 Prometheus 指标。
// 名称：
//   - revealer_ops_total{comp,stage,result}
//   - revealer_errors_total{comp,code}
//   - revealer_op_duration_seconds{comp,stage}
//   - revealer_probe_total{result}
//   - revealer_probe_duration_seconds
//   - revealer_probe_inflight
//   - revealer_slots{kind=resolved|total}
//   - revealer_rounds_total
type Metrics struct {
	OpsTotal      *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
	OpDuration    *prometheus.HistogramVec
	ProbeTotal    *prometheus.CounterVec
	ProbeDuration prometheus.Histogram
	ProbeInflight prometheus.Gauge
	Slots         *prometheus.GaugeVec
	RoundsTotal   prometheus.Counter
}

// NewMetrics 创建并注册全部指标；reg 为 nil 时不注册（仅内存计数）。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "ops_total",
			Help: "Component operations by stage and result",
		}, []string{"comp", "stage", "result"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "errors_total",
			Help: "Errors by component and classification code",
		}, []string{"comp", "code"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "op_duration_seconds",
			Help:    "Stage duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"comp", "stage"}),
		ProbeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "probe_total",
			Help: "Scoring probes by result (ok or failure code)",
		}, []string{"result"}),
		ProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Name: "probe_duration_seconds",
			Help:    "Single scoring round trip in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ProbeInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "probe_inflight",
			Help: "Scoring probes currently outstanding",
		}),
		Slots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "slots",
			Help: "Answer slots by kind (resolved, total)",
		}, []string{"kind"}),
		RoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "rounds_total",
			Help: "Completed probing rounds",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.OpsTotal, m.ErrorsTotal, m.OpDuration, m.ProbeTotal,
			m.ProbeDuration, m.ProbeInflight, m.Slots, m.RoundsTotal)
	}
	return m
}

// Registry 为进程级注册表（/metrics 导出来源）。
var (
	Registry = newRegistry()
	metrics  = NewMetrics(Registry)
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	metrics.OpsTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metrics.ErrorsTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时。
func ObserveDuration(comp, stage string, d time.Duration) {
	metrics.OpDuration.WithLabelValues(comp, stage).Observe(d.Seconds())
}

// ObserveProbe 记录单次探测结果与耗时；result 为 ok 或失败分类码。
func ObserveProbe(result string, d time.Duration) {
	metrics.ProbeTotal.WithLabelValues(result).Inc()
	metrics.ProbeDuration.Observe(d.Seconds())
}

// ProbeStarted / ProbeDone 维护在途探测数。
func ProbeStarted() { metrics.ProbeInflight.Inc() }
func ProbeDone()    { metrics.ProbeInflight.Dec() }

// SetSlots 发布当前进度。
func SetSlots(resolved, total int) {
	metrics.Slots.WithLabelValues("resolved").Set(float64(resolved))
	metrics.Slots.WithLabelValues("total").Set(float64(total))
}

// IncRound 累加完成轮数。
func IncRound() { metrics.RoundsTotal.Inc() }
