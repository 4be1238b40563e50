// Package cli is the pipelinectl command-line surface: thin cobra
// wiring over pkg/supervisor, pkg/config, and pkg/statusapi, following
// the teacher's own habit of keeping cmd packages free of business logic.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/basaltrun/slurmpipe/pkg/supervisor"
)

var (
	runDirFlag string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Drive array-job pipelines against Slurm-style batch schedulers",
	Long: `pipelinectl expands a pipeline definition into per-job work packages,
submits them to a workload manager in resource-homogeneous buckets, and
tracks them through to completion.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// RootCommand returns the top-level command so main can attach a
// cancellable context before calling Execute.
func RootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&runDirFlag, "run-dir", "run", "directory holding this run's work-package store and log files")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(abortCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(stdoutCmd)
	rootCmd.AddCommand(stderrCmd)
}

// ExitCode derives a process exit status from a Run/Retry error: 0 when
// every package settled (including cases where individual FAILED
// packages were merely logged under a continue failure policy), 130 when
// the run was cancelled through the abort sentinel, and 1 for anything
// that kept the pipeline from running at all (bad config, an unusable
// store, or an unrecovered scheduler error under a blocking failure
// policy).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(supervisor.Aborted); ok {
		return 130
	}
	return 1
}
