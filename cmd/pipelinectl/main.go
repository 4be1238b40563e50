// Command pipelinectl expands, submits, and tracks a pipeline's array
// jobs against a Slurm-style batch scheduler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/basaltrun/slurmpipe/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rootCmd := cli.RootCommand()
	rootCmd.SetContext(ctx)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pipelinectl:", err)
		os.Exit(cli.ExitCode(err))
	}
}
