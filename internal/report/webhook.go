package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"towerrunner/internal/tower"
	"towerrunner/pkg/cloudevent"
)

// EventTypeCompleted is the CloudEvent type sent when a run ends.
const EventTypeCompleted = "towerrunner.job.completed"

const eventSource = "towerrunner"

// Webhook delivers the outcome as a CloudEvent.
type Webhook struct {
	sender *cloudevent.Sender
	url    string
	key    string
}

// NewWebhook creates a webhook reporter. key may be empty for unsigned delivery.
func NewWebhook(sender *cloudevent.Sender, url, key string) *Webhook {
	return &Webhook{sender: sender, url: url, key: key}
}

// Report sends the event. A delivery failure is logged and returned.
func (w *Webhook) Report(ctx context.Context, res *tower.Result, runErr error) error {
	event := cloudevent.New(EventTypeCompleted, eventSource, res.JobID, uuid.NewString(), eventData(res, runErr))

	if err := w.sender.Send(ctx, w.url, event, w.key); err != nil {
		slog.With("component", "report", "runId", res.RunID, "url", w.url).Warn("Failed to deliver completion event", "error", err)
		return fmt.Errorf("deliver completion event: %w", err)
	}
	return nil
}

func eventData(res *tower.Result, runErr error) map[string]any {
	data := map[string]any{
		"runId":           res.RunID,
		"template":        res.Template,
		"templateId":      res.TemplateID,
		"jobId":           res.JobID,
		"status":          string(res.Status),
		"eventsEmitted":   res.EventsEmitted,
		"durationSeconds": res.Duration.Seconds(),
	}
	if runErr != nil {
		data["error"] = runErr.Error()
	}
	return data
}
