package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// setupSignalHandler creates a context that is canceled on SIGTERM or SIGINT.
// A long compilation stops at the next file boundary.
func setupSignalHandler() context.Context {
	return setupSignalHandlerWithCallback(nil)
}

// setupSignalHandlerWithCallback is setupSignalHandler that calls callback
// with the received signal before cancelling.
func setupSignalHandlerWithCallback(callback func(os.Signal)) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			if callback != nil {
				callback(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx
}
