package monitor

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	mc := NewMetricsCollector(reg, "resale")

	mc.RecordOrderCreation("success")
	mc.RecordOrderTransition("paid", "shipped")
	mc.RecordOrderTransition("paid", "shipped")
	mc.RecordChatMessage("text")
	mc.RecordPaymentEvent("confirmed")
	mc.RecordHTTPRequest("GET", "/api/v1/posts/:id", 200, 15*time.Millisecond, 512)
	mc.UpdateDBStats(sql.DBStats{OpenConnections: 4, InUse: 1, Idle: 3})

	assert.Equal(t, 2.0, metricValue(t, mc.orderTransitionTotal.WithLabelValues("paid", "shipped")))
	assert.Equal(t, 1.0, metricValue(t, mc.httpRequestTotal.WithLabelValues("GET", "/api/v1/posts/:id", "200")))
	assert.Equal(t, 3.0, metricValue(t, mc.dbConnections.WithLabelValues("idle")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["resale_order_creation_total"])
	assert.True(t, names["resale_http_request_duration_seconds"])
}

func metricValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %v", c.Desc())
	return 0
}

func TestMetricsCollector_NilSafe(t *testing.T) {
	var mc *MetricsCollector
	assert.NotPanics(t, func() {
		mc.RecordOrderCreation("success")
		mc.RecordHTTPRequest("GET", "/", 200, time.Millisecond, 0)
		mc.UpdateSystemMetrics()
		mc.StartSystemMetricsCollection(context.Background(), time.Second, nil)
	})
}

func TestTracer_Disabled(t *testing.T) {
	tr, err := NewTracer(TracerConfig{ServiceName: "resale"})
	require.NoError(t, err)
	assert.False(t, tr.Enabled())

	req := httptest.NewRequest("GET", "/api/v1/posts", nil)
	ctx, span := tr.StartHTTPSpan(context.Background(), "/api/v1/posts", req)
	tr.EndHTTPSpan(span, 200)
	assert.Empty(t, TraceID(ctx))
	assert.NoError(t, tr.Shutdown(context.Background()))
}
