// Package supervisor implements the restart-on-store-failure posture every
// cmd/ entrypoint takes (spec §5: "failure of the store: fatal to the
// component ... exit and let the supervisor restart"). It runs a
// component's main loop alongside its health surface and treats either one
// exiting with a non-context error as fatal to the whole process, trading
// the teacher's HTTP-server-keeps-serving-through-errors model for an
// external-supervisor-restarts model.
package supervisor

import (
	"context"
	"os"

	"go.uber.org/zap"
)

// Run starts every fn concurrently under ctx. When ctx is canceled (SIGINT/
// SIGTERM), every fn is expected to return promptly; Run waits for all of
// them before returning normally. If any fn returns an error that isn't
// ctx's own cancellation, Run logs it and calls os.Exit(1) immediately,
// rather than trying to keep the remaining components alive in a partially
// degraded state.
func Run(ctx context.Context, logger *zap.Logger, name string, fns ...func(context.Context) error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(fns))
	for _, fn := range fns {
		fn := fn
		go func() {
			errCh <- fn(ctx)
		}()
	}

	for i := 0; i < len(fns); i++ {
		if err := <-errCh; err != nil && err != context.Canceled {
			logger.Error(name+": component exited with error, exiting for supervisor restart", zap.Error(err))
			os.Exit(1)
		}
	}
}
