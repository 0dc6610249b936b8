// Package main is the entry point for elisedb.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"elisedb/cmd"
)

// main is the entry point.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
