package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	snapshot goRiskAuth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goRiskAuth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func TestRenderEmptyWhenDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: goRiskAuth.MetricsSnapshot{}})
	require.Empty(t, exp.Render())
}

func TestRenderCountersAndHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: goRiskAuth.MetricsSnapshot{
			Counters: map[goRiskAuth.MetricID]uint64{
				goRiskAuth.MetricLoginBlocked: 4,
			},
			Histograms: map[goRiskAuth.MetricID][]uint64{
				goRiskAuth.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	require.Contains(t, out, "riskauth_login_blocked_total 4\n")
	require.Contains(t, out, "riskauth_login_success_total 0\n")
	require.Contains(t, out, `riskauth_login_latency_seconds_bucket{le="0.005"} 1`)
	require.Contains(t, out, `riskauth_login_latency_seconds_bucket{le="+Inf"} 36`)
	require.Contains(t, out, "riskauth_login_latency_seconds_count 36\n")
	require.NotContains(t, out, "riskauth_authenticate_latency_seconds")
	require.Contains(t, out, "riskauth_audit_dropped_total 2\n")
}

func TestHandlerContentType(t *testing.T) {
	exp := NewExporter(fakeSource{snapshot: goRiskAuth.MetricsSnapshot{
		Counters: map[goRiskAuth.MetricID]uint64{goRiskAuth.MetricLogout: 1},
	}})

	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	require.Contains(t, rec.Body.String(), "riskauth_logout_total 1")
}
