package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	Register()
	Register()

	created := bookingCreated.WithLabelValues("camp", "Pending")
	before := counterValue(t, created)
	IncBookingCreated("camp", "Pending")
	assert.Equal(t, before+1, counterValue(t, created))

	before = counterValue(t, bookingConflicts)
	IncBookingConflict()
	assert.Equal(t, before+1, counterValue(t, bookingConflicts))

	approve := adminDecision.WithLabelValues("approve")
	before = counterValue(t, approve)
	IncAdminDecision("approve")
	assert.Equal(t, before+1, counterValue(t, approve))
}
