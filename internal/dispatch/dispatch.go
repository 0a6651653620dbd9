// Package dispatch implements C8: synchronous, registration-ordered
// delivery of scored opportunities to registered consumers, isolating a
// failing handler so it cannot abort the scan. Grounded on an
// on-opportunity/try-except dispatch loop and the logOpportunities-style
// consumer pattern used by cmd/watcher.
package dispatch

import (
	"github.com/rs/zerolog/log"

	"dexarb/internal/core"
	"dexarb/internal/metrics"
)

// Handler receives a scored Opportunity. It may return an error; dispatch
// logs it and continues to the next handler regardless.
type Handler func(core.Opportunity) error

// Dispatcher holds an ordered list of handlers.
type Dispatcher struct {
	handlers []Handler
	metrics  *metrics.Metrics
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// NewWithMetrics returns an empty Dispatcher that records handler failures to m.
func NewWithMetrics(m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{metrics: m}
}

// Register appends h to the end of the handler list.
func (d *Dispatcher) Register(h Handler) {
	d.handlers = append(d.handlers, h)
}

// Emit invokes every registered handler with opp, in registration order. A
// panicking or error-returning handler is caught, logged, and does not
// prevent later handlers from receiving opp.
func (d *Dispatcher) Emit(opp core.Opportunity) {
	for _, h := range d.handlers {
		d.invoke(h, opp)
	}
}

func (d *Dispatcher) invoke(h Handler, opp core.Opportunity) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("opportunity_id", opp.ID).Msg("opportunity handler panicked")
			if d.metrics != nil {
				d.metrics.RecordHandlerFailure()
			}
		}
	}()

	if err := h(opp); err != nil {
		log.Error().Err(err).Int64("opportunity_id", opp.ID).Msg("opportunity handler failed")
		if d.metrics != nil {
			d.metrics.RecordHandlerFailure()
		}
	}
}
