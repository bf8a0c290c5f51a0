package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fourdst.dev/plugin/internal/interfaces/cli"
)

// Populated by the linker at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	rootCmd := cli.NewRootCommand(version, commit, date)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
