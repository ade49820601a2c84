// Package workflow runs the summarize-and-notify action: summarize pending
// tasks and post the summary to Slack, reporting one structured outcome.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskflow/internal/domain"
	"taskflow/internal/notify"
	"taskflow/internal/summary"
)

const (
	MessagePrefix = "📝 *Task Summary from TaskFlow AI*:\n"

	MsgNoPending     = "No pending tasks to summarize."
	SummaryNoPending = "No pending tasks."
	MsgNotConfigured = "Slack integration is not configured (webhook URL missing)."
	MsgSent          = "Summary sent to Slack successfully!"

	defaultTimeout = 30 * time.Second
)

type Orchestrator struct {
	Summarizer summary.Summarizer
	Sink       notify.Sink
	Timeout    time.Duration
	Logger     *slog.Logger
}

func New(s summary.Summarizer, sink notify.Sink, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{Summarizer: s, Sink: sink, Timeout: timeout, Logger: logger}
}

// Run never returns a Go error; every failure is folded into the result.
func (o *Orchestrator) Run(ctx context.Context, tasks []domain.Task) domain.WorkflowResult {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pending := domain.Pending(tasks)
	if len(pending) == 0 {
		return domain.WorkflowResult{Success: true, Message: MsgNoPending, Summary: SummaryNoPending}
	}
	if o.Sink == nil || !o.Sink.Configured() {
		logger.Error("slack webhook URL is not set")
		return domain.WorkflowResult{Success: false, Message: MsgNotConfigured}
	}
	if o.Summarizer == nil {
		return failure(errors.New("summarizer not configured"))
	}

	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := o.Summarizer.Summarize(ctx, pending)
	if err != nil {
		logger.Error("summarize tasks", "error", err, "pending", len(pending))
		return failure(err)
	}
	if err := o.Sink.Send(ctx, MessagePrefix+s.Summary); err != nil {
		var se *notify.StatusError
		if errors.As(err, &se) {
			logger.Error("slack webhook rejected summary", "status", se.Code, "body", se.Body)
			return domain.WorkflowResult{Success: false, Message: fmt.Sprintf("Failed to send summary to Slack. Status: %d", se.Code)}
		}
		logger.Error("send summary to slack", "error", err)
		return failure(err)
	}
	logger.Info("summary sent to slack", "pending", len(pending))
	return domain.WorkflowResult{Success: true, Message: MsgSent, Summary: s.Summary}
}

func failure(err error) domain.WorkflowResult {
	return domain.WorkflowResult{
		Success: false,
		Message: "Error generating summary or sending to Slack: " + err.Error(),
	}
}
