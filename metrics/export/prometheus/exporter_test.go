package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestCollectorCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess: 7,
				authcore.MetricLoginLocked:  2,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 3,
	})

	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}

	expected := `
# HELP authcore_login_success_total Successful authentications.
# TYPE authcore_login_success_total counter
authcore_login_success_total 7
# HELP authcore_login_locked_total Login attempts refused by lockout.
# TYPE authcore_login_locked_total counter
authcore_login_locked_total 2
# HELP authcore_audit_dropped_total Audit events dropped due to dispatcher backpressure.
# TYPE authcore_audit_dropped_total counter
authcore_audit_dropped_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"authcore_login_success_total", "authcore_login_locked_total", "authcore_audit_dropped_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "authcore_validate_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 36 {
			t.Fatalf("sample count = %d, want 36", h.GetSampleCount())
		}
		if got := h.GetBucket()[0].GetCumulativeCount(); got != 1 {
			t.Fatalf("first bucket = %d, want 1", got)
		}
	}
	if !found {
		t.Fatal("latency histogram missing")
	}
}

func TestCollectorSkipsHistogramWhenLatencyDisabled(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	if n := testutil.CollectAndCount(c, "authcore_validate_latency_seconds"); n != 0 {
		t.Fatalf("expected no histogram, got %d", n)
	}
	if n := testutil.CollectAndCount(c, "authcore_login_failure_total"); n != 1 {
		t.Fatalf("expected zero-valued counter, got %d series", n)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	h, err := Handler(NewCollectorFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricRoleChanged: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	}))
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authcore_role_changed_total 1") {
		t.Fatalf("missing counter in body:\n%s", rec.Body.String())
	}
}
