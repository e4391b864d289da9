// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はセッションとHTTPのメトリクスを収集する。
// session.Recorder、signup.Recorder、middleware.StatusRecorderを満たす。
type Collector struct {
	logins          *prometheus.CounterVec
	registrations   prometheus.Counter
	logouts         *prometheus.CounterVec
	restores        *prometheus.CounterVec
	idleChecks      prometheus.Counter
	checkoutLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandshield_login_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandshield_registrations_total",
			Help: "新規登録の合計数",
		}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandshield_logouts_total",
			Help: "理由別のログアウト数",
		}, []string{"reason"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandshield_session_restore_total",
			Help: "起動時のセッション復元の結果別の数",
		}, []string{"result"}),
		idleChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandshield_idle_checks_total",
			Help: "アイドルチェックの実行回数",
		}),
		checkoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "brandshield_checkout_latency_seconds",
			Help:    "トライアルのチェックアウト作成のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brandshield_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.logouts,
		c.restores,
		c.idleChecks,
		c.checkoutLatency,
		c.httpStatus,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// RecordRegistration は新規登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogout はログアウトを理由別に記録する。
func (c *Collector) RecordLogout(reason string) {
	c.logouts.WithLabelValues(reason).Inc()
}

// RecordRestore は起動時復元の結果を記録する。
func (c *Collector) RecordRestore(result string) {
	c.restores.WithLabelValues(result).Inc()
}

// RecordIdleCheck はアイドルチェックの実行を記録する。
func (c *Collector) RecordIdleCheck() {
	c.idleChecks.Inc()
}

// ObserveCheckoutLatency はチェックアウト作成のレイテンシを記録する。
func (c *Collector) ObserveCheckoutLatency(d time.Duration) {
	c.checkoutLatency.Observe(d.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
