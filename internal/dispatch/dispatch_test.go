package dispatch

import (
	"errors"
	"testing"

	"dexarb/internal/core"
	"dexarb/internal/metrics"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// TestEmitDeliversInRegistrationOrder verifies handlers receive the
// opportunity in the order they were registered.
func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	d := New()
	var order []int
	d.Register(func(core.Opportunity) error { order = append(order, 1); return nil })
	d.Register(func(core.Opportunity) error { order = append(order, 2); return nil })
	d.Register(func(core.Opportunity) error { order = append(order, 3); return nil })

	d.Emit(core.Opportunity{ID: 1})

	require.Equal(t, []int{1, 2, 3}, order)
}

// TestEmitIsolatesFailingHandler verifies an error-returning handler does
// not stop later handlers from receiving the opportunity.
func TestEmitIsolatesFailingHandler(t *testing.T) {
	d := New()
	var secondCalled bool
	d.Register(func(core.Opportunity) error { return errors.New("boom") })
	d.Register(func(core.Opportunity) error { secondCalled = true; return nil })

	d.Emit(core.Opportunity{ID: 1})

	require.True(t, secondCalled)
}

// TestEmitIsolatesPanickingHandler verifies a panicking handler is
// recovered and does not prevent later handlers from running.
func TestEmitIsolatesPanickingHandler(t *testing.T) {
	d := New()
	var secondCalled bool
	d.Register(func(core.Opportunity) error { panic("boom") })
	d.Register(func(core.Opportunity) error { secondCalled = true; return nil })

	require.NotPanics(t, func() { d.Emit(core.Opportunity{ID: 1}) })
	require.True(t, secondCalled)
}

// TestEmitWithoutMetricsDoesNotPanic verifies a Dispatcher built with New
// (no metrics) tolerates failing handlers without a nil-pointer panic.
func TestEmitWithoutMetricsDoesNotPanic(t *testing.T) {
	d := New()
	d.Register(func(core.Opportunity) error { return errors.New("boom") })
	require.NotPanics(t, func() { d.Emit(core.Opportunity{ID: 1}) })
}

// TestEmitRecordsHandlerFailureMetric verifies NewWithMetrics wires handler
// failures through to the metrics counter.
func TestEmitRecordsHandlerFailureMetric(t *testing.T) {
	m := metrics.New()
	d := NewWithMetrics(m)
	d.Register(func(core.Opportunity) error { return errors.New("boom") })
	d.Register(func(core.Opportunity) error { panic("boom") })

	require.NotPanics(t, func() { d.Emit(core.Opportunity{ID: 1}) })

	var pb dto.Metric
	require.NoError(t, m.HandlerFailures.Write(&pb))
	require.Equal(t, 2.0, pb.GetCounter().GetValue())
}
