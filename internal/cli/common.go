package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basaltrun/slurmpipe/pkg/config"
	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/notify"
	"github.com/basaltrun/slurmpipe/pkg/notify/logger"
	"github.com/basaltrun/slurmpipe/pkg/notify/slack"
	"github.com/basaltrun/slurmpipe/pkg/pgpool"
	"github.com/basaltrun/slurmpipe/pkg/scheduler"
	"github.com/basaltrun/slurmpipe/pkg/scheduler/fake"
	"github.com/basaltrun/slurmpipe/pkg/scheduler/slurmrest"
	"github.com/basaltrun/slurmpipe/pkg/store"
	"github.com/basaltrun/slurmpipe/pkg/store/pgledger"
)

// Flags shared by start and retry, since both build the same run
// environment (scheduler adapter, ledger, notifier) around a pipeline.
var (
	accountFlag  string
	logDirFlag   string
	envFlag      string
	statusAddr   string

	schedulerURL      string
	schedulerUser     string
	schedulerSecret   string
	schedulerAPIVersion string

	pgDSN string
)

func bindRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&accountFlag, "account", "a", "", "override properties.account")
	cmd.Flags().StringVarP(&logDirFlag, "log-dir", "l", "", "override every job's log_dir")
	cmd.Flags().StringVarP(&envFlag, "env", "e", "", "override properties.conda_env")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "", "serve the read-only status API on this address, e.g. :8080")

	cmd.Flags().StringVar(&schedulerURL, "scheduler-url", "", "slurmrestd base URL; omitted runs against an in-process fake scheduler")
	cmd.Flags().StringVar(&schedulerUser, "scheduler-user", "", "slurmrestd SUN identity to sign requests as")
	cmd.Flags().StringVar(&schedulerSecret, "scheduler-token-secret", "", "HS256 secret slurmrestd was configured with")
	cmd.Flags().StringVar(&schedulerAPIVersion, "scheduler-api-version", "v0.0.39", "slurmrestd API version path segment")

	cmd.Flags().StringVar(&pgDSN, "pg-dsn", "", "optional Postgres DSN for the supplementary audit ledger")
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// loadPipeline seals the pipeline definition at path and applies the
// -a/-l/-e CLI overrides, per spec.md §6.
func loadPipeline(path string) (*config.Pipeline, error) {
	pipeline, err := config.Load(path)
	if err != nil {
		return nil, errors.WithClass(errors.ClassConfig, errors.Wrap(err))
	}
	return pipeline.WithOverrides(accountFlag, logDirFlag, envFlag), nil
}

// buildAdapter picks the real slurmrestd client when a scheduler URL was
// given, falling back to the in-process fake for local dry runs.
func buildAdapter(log *zap.SugaredLogger) (scheduler.Adapter, error) {
	if schedulerURL == "" {
		log.Warn("no --scheduler-url given, running against an in-process fake scheduler")
		return fake.New(), nil
	}
	if schedulerSecret == "" {
		return nil, errors.WithClass(errors.ClassConfig, errors.New("--scheduler-token-secret is required when --scheduler-url is set"))
	}
	signer := slurmrest.NewTokenSigner([]byte(schedulerSecret), schedulerUser, time.Minute)
	return slurmrest.New(schedulerURL, schedulerAPIVersion, signer), nil
}

// buildNotifier posts to Slack when properties.slack names a webhook,
// otherwise falls back to structured log lines, per spec.md §4.7.
func buildNotifier(pipeline *config.Pipeline, log *zap.SugaredLogger) notify.Notifier {
	if sw := pipeline.Properties().Slack(); sw != nil && sw.URL != nil {
		return slack.New(sw.Channel, sw.Token)
	}
	return logger.New(log)
}

// buildLedger opens the supplementary Postgres audit ledger when a DSN
// was supplied; the returned closer must run once the run is finished.
func buildLedger(ctx context.Context) (store.AuditLedger, func(), error) {
	if pgDSN == "" {
		return nil, func() {}, nil
	}
	pool, err := pgxpool.Connect(ctx, pgDSN)
	if err != nil {
		return nil, nil, errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	ledger := pgledger.New(pgpool.Wrap(pool))
	if err := ledger.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.WithClass(errors.ClassStore, errors.Wrap(err))
	}
	return ledger, pool.Close, nil
}
