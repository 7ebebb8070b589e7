package contextutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShortTimeout bounds local housekeeping such as metric pushes and trace
// flushes after a run.
const ShortTimeout = 5 * time.Second

// WithInterrupt returns a context cancelled on SIGINT or SIGTERM.
func WithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// WithShortTimeout derives a ShortTimeout context that survives the
// cancellation of parent, so cleanup still runs after an interrupt.
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), ShortTimeout)
}
