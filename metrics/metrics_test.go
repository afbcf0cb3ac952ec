package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.PagesScraped.Add(3)
	m.QueriesTotal.Inc()
	m.WebhookDelivered.Inc()

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.PagesScraped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueriesTotal))
}

func TestNewUnregistered(t *testing.T) {
	m := NewUnregistered()
	m.PagesFailed.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PagesFailed))

	// Two unregistered sets must not collide.
	other := NewUnregistered()
	other.PagesFailed.Add(5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PagesFailed))
}
