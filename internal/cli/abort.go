package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/basaltrun/slurmpipe/pkg/errors"
)

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Signal a running pipeline in --run-dir to cancel and exit",
	Args:  cobra.NoArgs,
	RunE:  runAbort,
}

// runAbort touches the run's ABORT sentinel; the running supervisor's
// filewatch.UntilModifyContext watch on that file is what actually
// drives the cancellation, per spec.md §4.6.
func runAbort(cmd *cobra.Command, args []string) error {
	sentinel := filepath.Join(runDirFlag, "ABORT")
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := os.WriteFile(sentinel, []byte(now+"\n"), 0o644); err != nil {
		return errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	return nil
}
