// Package slack posts pipeline lifecycle events to a Slack channel through
// the chat.postMessage API with a bot token, matching the message shape of
// original_source/slurm_pipeline/slack_notifications.py and
// control_plane.py's notify_start/notify_status/notify_done: bolded
// status headers, threaded replies for periodic updates.
//
// No Slack SDK appears anywhere in the retrieved corpus, so this speaks
// the chat.postMessage HTTP API directly over stdlib net/http rather than
// pulling in an out-of-pack dependency for one endpoint.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/notify"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// Notifier posts to a single Slack channel using a bot token, threading
// status updates under the message that opened the thread.
type Notifier struct {
	channel    string
	token      string
	endpoint   string
	httpClient *http.Client

	thread string // ts of the thread-opening message; empty until PipelineStarted posts one
}

func New(channel, token string) *Notifier {
	return &Notifier{channel: channel, token: token, endpoint: defaultPostMessageURL, httpClient: http.DefaultClient}
}

// SetEndpointForTest points the notifier at a test double instead of the
// real Slack API.
func (n *Notifier) SetEndpointForTest(url string) {
	n.endpoint = url
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error,omitempty"`
}

// send posts msg to the channel. When thread is true and a thread has
// already been opened, the message is posted as a threaded reply,
// matching the original's `self._notify(msg, thread=True)` default.
func (n *Notifier) send(ctx context.Context, msg string, thread bool) error {
	body := postMessageRequest{Channel: n.channel, Text: msg}
	if thread && n.thread != "" {
		body.ThreadTS = n.thread
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return errors.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+n.token)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return errors.WithClass(errors.ClassNotifier, errors.Wrap(err))
	}
	defer resp.Body.Close()

	var decoded postMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return errors.WithClass(errors.ClassNotifier, errors.Wrap(err))
	}
	if !decoded.OK {
		return errors.WithClass(errors.ClassNotifier, errors.New("slack: "+decoded.Error))
	}
	if !thread || n.thread == "" {
		n.thread = decoded.TS
	}
	return nil
}

func (n *Notifier) PipelineStarted(ctx context.Context) error {
	return n.send(ctx, "*PIPELINE JOB STARTED*\n> Scheduling pipeline...", false)
}

func (n *Notifier) JobStarted(ctx context.Context, jobName string) error {
	return n.send(ctx, fmt.Sprintf("> Job *%s* started.", jobName), true)
}

func (n *Notifier) JobCompleted(ctx context.Context, jobName string, counts notify.Counts) error {
	msg := fmt.Sprintf(
		"*Job %s finished*\n> SUCCEEDED: %d\n> FAILED: %d\n> CANCELLED: %d",
		jobName, counts.Succeeded, counts.Failed, counts.Cancelled,
	)
	return n.send(ctx, msg, true)
}

func (n *Notifier) PipelineCompleted(ctx context.Context, summary string) error {
	return n.send(ctx, "*PIPELINE JOB FINISHED*\n> "+summary, false)
}

func (n *Notifier) Error(ctx context.Context, message string) error {
	return n.send(ctx, "🚨 "+message, true)
}

var _ notify.Notifier = (*Notifier)(nil)
