package cli

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/basaltrun/slurmpipe/pkg/store/fsstore"
	"github.com/basaltrun/slurmpipe/pkg/supervisor"
)

var retryCmd = &cobra.Command{
	Use:   "retry <pipeline.yaml>",
	Short: "Resubmit every FAILED work package, grouped by resource allocation",
	Args:  cobra.ExactArgs(1),
	RunE:  runRetry,
}

func init() {
	bindRunFlags(retryCmd)
}

func runRetry(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pipeline, err := loadPipeline(args[0])
	if err != nil {
		return err
	}
	log := newLogger()
	defer log.Sync()

	adapter, err := buildAdapter(log)
	if err != nil {
		return err
	}

	st := fsstore.Open(runDirFlag)
	defer st.Close()

	ledger, closeLedger, err := buildLedger(ctx)
	if err != nil {
		return err
	}
	defer closeLedger()

	sup := supervisor.New(pipeline, adapter, st, buildNotifier(pipeline, log), uuid.New().String(), runDirFlag, log)
	sup.Ledger = ledger

	return sup.Retry(ctx)
}
