// Package logger is the no-webhook fallback Notifier, matching the
// original's "No notification hook configured" behavior: every event is
// logged through the shared zap logger instead of a Slack channel.
package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/basaltrun/slurmpipe/pkg/notify"
)

type Notifier struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Notifier {
	return &Notifier{log: log}
}

func (n *Notifier) PipelineStarted(_ context.Context) error {
	n.log.Info("pipeline started")
	return nil
}

func (n *Notifier) JobStarted(_ context.Context, jobName string) error {
	n.log.Infow("job started", "job", jobName)
	return nil
}

func (n *Notifier) JobCompleted(_ context.Context, jobName string, counts notify.Counts) error {
	n.log.Infow("job completed", "job", jobName,
		"succeeded", counts.Succeeded, "failed", counts.Failed,
		"cancelled", counts.Cancelled, "pending", counts.Pending, "running", counts.Running,
	)
	return nil
}

func (n *Notifier) PipelineCompleted(_ context.Context, summary string) error {
	n.log.Info("pipeline completed: " + summary)
	return nil
}

func (n *Notifier) Error(_ context.Context, message string) error {
	n.log.Error(message)
	return nil
}

var _ notify.Notifier = (*Notifier)(nil)
