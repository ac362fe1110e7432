package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveDuration("dispatch", 250*time.Millisecond)
	m.IncSuccess("dispatch")
	m.IncFailure("dispatch")
	m.IncSkipped("")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := counterValue(mfs, "prospect_job_success_total", "job", "dispatch")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "prospect_job_failure_total", "job", "dispatch")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = counterValue(mfs, "prospect_job_skipped_total", "job", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	mf := findMetricFamily(mfs, "prospect_job_duration_seconds")
	require.NotNil(t, mf)
	assert.Greater(t, mf.GetMetric()[0].GetHistogram().GetSampleSum(), 0.0)
}

func TestDispatchMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	m.ObserveSend("sent")
	m.ObserveSend("sent")
	m.ObserveSend("vetoed")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := counterValue(mfs, "prospect_dispatch_messages_total", "outcome", "sent")
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var jm *JobMetrics
	jm.IncSuccess("x")
	NewJobMetrics(nil).ObserveDuration("x", time.Second)
	var dm *DispatchMetrics
	dm.ObserveSend("sent")
}

func counterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, l := range metric.GetLabel() {
			if l.GetName() == label && l.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
