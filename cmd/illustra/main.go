package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Manual signal handling, rather than signal.NotifyContext, so a
	// second Ctrl+C still gets through after the first has canceled ctx:
	// the run's worker pools drain in-flight chapters on the first
	// signal, and a stuck call (a hung HTTP request, say) can still be
	// killed outright on the second.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh // first signal: let in-flight chapters finish and state save
		fmt.Fprintln(os.Stderr, "\nStopping: finishing in-flight chapters and saving state...")
		cancel()
		<-sigCh // second signal: abandon the run
		fmt.Fprintln(os.Stderr, "\nForced exit, state may be incomplete")
		os.Exit(1)
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
