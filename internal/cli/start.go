package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/basaltrun/slurmpipe/pkg/statusapi"
	"github.com/basaltrun/slurmpipe/pkg/store/fsstore"
	"github.com/basaltrun/slurmpipe/pkg/supervisor"
)

var startCmd = &cobra.Command{
	Use:   "start <pipeline.yaml>",
	Short: "Expand and run a pipeline to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

func init() {
	bindRunFlags(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
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

	if statusAddr != "" {
		srv := statusapi.New(st, log, pipeline.Properties().LogLevel())
		go func() {
			if err := srv.Start(statusAddr); err != nil && err != http.ErrServerClosed {
				log.Errorw("status api stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	return sup.Run(ctx)
}
