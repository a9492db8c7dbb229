package metric

import (
	"testing"

	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetricItem struct {
	name string
}

func (mock *mockMetricItem) JSONString() string {
	return mock.name
}

func newTestMetric() *MetricSet {
	m := NewMetricSet()
	m.metrics["TEST"] = &mockMetricItem{name: "TEST"}
	return m
}

func TestMetricSet_HasMetrics(t *testing.T) {
	metric := newTestMetric()

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.False(t, metric.HasMetrics("FTEST"), "shouldn't contain label(FTEST)")
	assert.Nil(t, metric.GetMetrics("FTEST"))
}

func TestMetricSet_SetMetrics(t *testing.T) {
	metric := newTestMetric()

	mockItem := &mockMetricItem{name: "TEST"}
	assert.Equal(t, ErrMetricLabelExist, metric.SetMetrics("TEST", mockItem), "label(TEST)不应该设置成功")

	assert.Nil(t, metric.SetMetrics("TEST1", mockItem), "label(TEST1)应该设置成功")

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.True(t, metric.HasMetrics("TEST1"), "should contain label(TEST1)")
}

func TestMetricSet_Labels(t *testing.T) {
	metric := newTestMetric()
	require.NoError(t, metric.SetMetrics("A", &mockMetricItem{name: "a"}))

	assert.Equal(t, []string{"A", "TEST"}, metric.Labels())
	assert.Equal(t, map[string]string{"A": "a", "TEST": "TEST"}, metric.JSONStrings())
	assert.Equal(t, map[string]string{"A": "a"}, metric.JSONStrings("A", "missing"))
}

func TestRegistryItem(t *testing.T) {
	r := metrics.NewRegistry()
	height := int64(7)
	require.NoError(t, r.Register("height", metrics.NewFunctionalGauge(func() int64 { return height })))
	c := metrics.NewCounter()
	c.Inc(3)
	require.NoError(t, r.Register("count", c))

	assert.JSONEq(t, `{"count":{"count":3},"height":{"value":7}}`, RegistryItem(r).JSONString())

	height = 8
	assert.JSONEq(t, `{"count":{"count":3},"height":{"value":8}}`, RegistryItem(r).JSONString())
}
