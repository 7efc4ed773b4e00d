// Command brepq loads, inspects and traces faceted b-rep geometry.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/brepq/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
