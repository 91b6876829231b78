package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestCollectorsAreRegistered(t *testing.T) {
	HTTPRequests.WithLabelValues("GET", "/players/{id}", "200").Inc()
	PipelineRowsWritten.WithLabelValues("features").Add(21)
	TimeTravelViolations.Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	requests := findMetric(t, families, "transferlens_http_requests_total")
	require.NotNil(t, requests)
	assert.Equal(t, dto.MetricType_COUNTER, requests.GetType())

	rows := findMetric(t, families, "transferlens_pipeline_rows_written_total")
	require.NotNil(t, rows)
	found := false
	for _, m := range rows.GetMetric() {
		for _, label := range m.GetLabel() {
			if label.GetName() == "stage" && label.GetValue() == "features" {
				found = true
				assert.GreaterOrEqual(t, m.GetCounter().GetValue(), 21.0)
			}
		}
	}
	assert.True(t, found)

	violations := findMetric(t, families, "transferlens_temporal_violations_total")
	require.NotNil(t, violations)
	assert.GreaterOrEqual(t, violations.GetMetric()[0].GetCounter().GetValue(), 1.0)
}
