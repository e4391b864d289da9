package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if c := NewCollector(prometheus.NewRegistry()); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordLogin_LabelsResult はログイン結果がラベル別に集計されることを検証する。
func TestRecordLogin_LabelsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(true)
	c.RecordLogin(false)
	c.RecordLogin(false)

	if v := findMetric(t, reg, "brandshield_login_total", map[string]string{"result": "success"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("login_total{result=success} = %v, want 1", v)
	}
	if v := findMetric(t, reg, "brandshield_login_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("login_total{result=failure} = %v, want 2", v)
	}
}

// TestSessionCounters はセッション系カウンタが増加することを検証する。
func TestSessionCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRegistration()
	c.RecordLogout("expired")
	c.RecordLogout("explicit")
	c.RecordLogout("expired")
	c.RecordRestore("restored")
	c.RecordIdleCheck()
	c.RecordIdleCheck()

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"brandshield_registrations_total", nil, 1},
		{"brandshield_logouts_total", map[string]string{"reason": "expired"}, 2},
		{"brandshield_logouts_total", map[string]string{"reason": "explicit"}, 1},
		{"brandshield_session_restore_total", map[string]string{"result": "restored"}, 1},
		{"brandshield_idle_checks_total", nil, 2},
	}
	for _, tt := range tests {
		if v := findMetric(t, reg, tt.name, tt.labels).GetCounter().GetValue(); v != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, v, tt.want)
		}
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	if v := findMetric(t, reg, "brandshield_http_status_total", map[string]string{"status_code": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("http_status_total{status_code=200} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "brandshield_http_status_total", map[string]string{"status_code": "401"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("http_status_total{status_code=401} = %v, want 1", v)
	}
}

// TestObserveCheckoutLatency_ObservesHistogram はチェックアウトのレイテンシがヒストグラムに記録されることを検証する。
func TestObserveCheckoutLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveCheckoutLatency(100 * time.Millisecond)
	c.ObserveCheckoutLatency(2 * time.Second)

	h := findMetric(t, reg, "brandshield_checkout_latency_seconds", nil).GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}
