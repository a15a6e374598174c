package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics はOEE Copilotのprometheusメトリクスを保持します。
// nilレシーバーでも各Record系メソッドは安全に呼び出せます。
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CopilotResponses    *prometheus.CounterVec
	GenerativeFailures  prometheus.Counter
	StorageReadFailures prometheus.Counter
	ImportedRows        prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New は独立したレジストリにメトリクスを登録して返します。
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
	m.CopilotResponses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "copilot_responses_total",
			Help:      "Assistant responses by topic and response mode",
		},
		[]string{"topic", "mode"},
	)
	m.GenerativeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "copilot_generative_failures_total",
		Help:      "Generative calls that failed and fell back to templates",
	})
	m.StorageReadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "copilot_storage_read_failures_total",
		Help:      "Status log reads that failed and were treated as no data",
	})
	m.ImportedRows = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_log_rows_imported_total",
		Help:      "Equipment status log rows written by bulk import",
	})
	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CopilotResponses,
		m.GenerativeFailures,
		m.StorageReadFailures,
		m.ImportedRows,
		m.CircuitBreakerState,
	)
	return m
}

// Handler は /metrics 用のHTTPハンドラを返します。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest はHTTPリクエスト1件の件数と処理時間を記録します。pathはルートテンプレートです。
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCopilotResponse はトピックと応答方式ごとの応答件数を数えます。
func (m *Metrics) RecordCopilotResponse(topic, mode string) {
	if m == nil {
		return
	}
	m.CopilotResponses.WithLabelValues(topic, mode).Inc()
}

// RecordGenerativeFailure は定型文にフォールバックした生成APIの失敗を数えます。
func (m *Metrics) RecordGenerativeFailure() {
	if m == nil {
		return
	}
	m.GenerativeFailures.Inc()
}

// RecordStorageReadFailure はデータ無しとして扱ったステータスログの読み取り失敗を数えます。
func (m *Metrics) RecordStorageReadFailure() {
	if m == nil {
		return
	}
	m.StorageReadFailures.Inc()
}

// RecordImportedRows は一括インポートで書き込んだ行数を加算します。
func (m *Metrics) RecordImportedRows(n int) {
	if m == nil {
		return
	}
	m.ImportedRows.Add(float64(n))
}

// SetCircuitBreakerState はgobreaker.Stateの数値（closed=0, half-open=1, open=2）を記録します。
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
