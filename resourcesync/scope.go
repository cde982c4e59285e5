package resourcesync

import "context"

// newFlightScope derives a fetch flight's cancellation scope. Values flow
// through from the triggering caller's ctx (tracing, deadline-free tokens),
// but the lifecycle belongs to the flight alone: a caller going away never
// kills a fetch other callers or subscribers still want.
func newFlightScope(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(parent))
}

// writeScope is the ctx mutations run under. Server writes are never
// auto-cancelled by the caller going away.
func writeScope(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}
