package runtime

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext is cancelled on the first SIGINT or SIGTERM, which is logged.
// A second signal falls through to the default handler and kills the process.
func SignalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)
		select {
		case s := <-sigs:
			if logger != nil {
				logger.Info("shutdown signal received", "signal", s.String())
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
