package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistogramRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()

	h, err := NewHistogram(reg, "treecolor")
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = NewHistogram(reg, "treecolor")
	assert.Error(t, err, "the duration histogram cannot be registered twice")
}

func TestHistogramObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewHistogram(reg, "treecolor")
	require.NoError(t, err)

	h.Start("section")
	h.Stop("section")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "treecolor_section_duration_seconds", families[0].GetName())
	require.Len(t, families[0].GetMetric(), 1)
	assert.EqualValues(t, 1, families[0].GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestStopWithoutStartIsIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := NewHistogram(reg, "treecolor")
	require.NoError(t, err)

	assert.NotPanics(t, func() { h.Stop("never started") })

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}
