package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_KeepsApplication(t *testing.T) {
	collector := NewCollector("billing")

	assert.Equal(t, "billing", collector.Application())
}

func TestCollector_Counters(t *testing.T) {
	tests := []struct {
		name  string
		inc   func(c *Collector)
		value func() float64
	}{
		{
			name:  "applied",
			inc:   (*Collector).IncApplied,
			value: func() float64 { return testutil.ToFloat64(MigrationsAppliedTotal.WithLabelValues("mtest-1")) },
		},
		{
			name:  "rolled back",
			inc:   (*Collector).IncRolledBack,
			value: func() float64 { return testutil.ToFloat64(MigrationsRolledBackTotal.WithLabelValues("mtest-1")) },
		},
		{
			name:  "failures",
			inc:   func(c *Collector) { c.IncFailures("apply") },
			value: func() float64 { return testutil.ToFloat64(MigrationFailuresTotal.WithLabelValues("mtest-1", "apply")) },
		},
		{
			name:  "ignored errors",
			inc:   func(c *Collector) { c.IncIgnoredErrors("rollback") },
			value: func() float64 { return testutil.ToFloat64(IgnoredErrorsTotal.WithLabelValues("mtest-1", "rollback")) },
		},
		{
			name:  "compensations",
			inc:   (*Collector).IncCompensations,
			value: func() float64 { return testutil.ToFloat64(CompensationsTotal.WithLabelValues("mtest-1")) },
		},
		{
			name:  "status reports",
			inc:   func(c *Collector) { c.IncStatusReports("failed") },
			value: func() float64 { return testutil.ToFloat64(StatusReportsTotal.WithLabelValues("mtest-1", "failed")) },
		},
		{
			name:  "dispatches",
			inc:   func(c *Collector) { c.IncDispatches("apply") },
			value: func() float64 { return testutil.ToFloat64(DispatchesTotal.WithLabelValues("mtest-1", "apply")) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewCollector("mtest-1")

			before := tt.value()
			tt.inc(collector)
			after := tt.value()

			assert.Equal(t, before+1, after)
		})
	}
}

func TestCollector_ObserveAction(t *testing.T) {
	collector := NewCollector("mtest-2")

	collector.ObserveAction("reapply", 250*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(ActionDuration, "appmigrate_action_duration_seconds"))
}

func TestServer_HandlerServesMetrics(t *testing.T) {
	NewCollector("mtest-3").IncApplied()
	server := NewServer("127.0.0.1:0")

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "appmigrate_migrations_applied_total"))
}
