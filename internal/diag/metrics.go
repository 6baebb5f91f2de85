package diag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 指标：
// - llmxml_ops_total{comp,stage,result}
// - llmxml_errors_total{comp,code}
// - llmxml_op_duration_ms{comp,stage}
// 注册在私有 registry 上，批处理结束时可写出为 textfile。
var (
	registry = prometheus.NewRegistry()

	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llmxml",
		Name:      "ops_total",
		Help:      "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llmxml",
		Name:      "errors_total",
		Help:      "Errors by component and classification code.",
	}, []string{"comp", "code"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "llmxml",
		Name:      "op_duration_ms",
		Help:      "Stage duration in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"comp", "stage"})
)

func init() {
	registry.MustRegister(opsTotal, errorsTotal, opDuration)
}

// Registry 暴露私有 registry（供测试与导出）。
func Registry() *prometheus.Registry { return registry }

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	opsTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorsTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// WriteMetrics 以 node_exporter textfile 格式写出全部指标。
func WriteMetrics(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
