package errorutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ExitInterrupted is the conventional status for a run stopped by SIGINT.
const ExitInterrupted = 130

// HandleError is a utility function for handling errors with logging
func HandleError(log zerolog.Logger, err error, msg string) {
	if err != nil {
		log.Error().Err(err).Msg(msg)
	}
}

// HandleContextError logs err, reporting the context's error instead when
// the failure was caused by cancellation.
func HandleContextError(log zerolog.Logger, ctx context.Context, err error, interruptedMsg, errorMsg string) {
	if err == nil {
		return
	}
	select {
	case <-ctx.Done():
		log.Error().Err(ctx.Err()).Msg(interruptedMsg)
	default:
		log.Error().Err(err).Msg(errorMsg)
	}
}

// ExitCode maps a command error to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return 1
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
