// evbridge - a ZeroMQ request/reply bridge that turns network messages
// into trigger and text events for a real-time processing pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"evbridge/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "evbridge: %v\n", err)
		os.Exit(1)
	}
}
