package tower

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// JobAPI is the part of Client the poller needs.
type JobAPI interface {
	JobStatus(ctx context.Context, jobID string) (Status, error)
	FetchNewEvents(ctx context.Context, jobID string, lastDisplayed int) ([]Event, int, error)
}

// Metrics records run progress. A nil Metrics is allowed.
type Metrics interface {
	RecordPoll(ctx context.Context, status string)
	RecordEventsEmitted(ctx context.Context, count int)
	RecordJobCompleted(ctx context.Context, template, status string, durationSeconds float64)
}

// PollResult summarises a finished poll loop.
type PollResult struct {
	Status        Status
	EventsEmitted int
	Polls         int
	LastCounter   int
}

// Poller drives a launched job to a terminal status, streaming its events.
type Poller struct {
	api      JobAPI
	sink     Sink
	interval time.Duration
	metrics  Metrics
}

// NewPoller creates a poller. A zero interval polls back to back.
func NewPoller(api JobAPI, sink Sink, interval time.Duration, metrics Metrics) *Poller {
	return &Poller{api: api, sink: sink, interval: interval, metrics: metrics}
}

// Poll checks the job's status, fetches and emits new events once the job
// has left pending, and sleeps between checks until the status is terminal.
// Any status or events error ends the loop; events emitted before it stay
// emitted and the result reports how far the loop got.
func (p *Poller) Poll(ctx context.Context, jobID string) (PollResult, error) {
	logger := slog.With("component", "poller", "jobId", jobID)
	res := PollResult{LastCounter: NoEventsDisplayed}
	var previous Status

	for {
		status, err := p.api.JobStatus(ctx, jobID)
		if err != nil {
			return res, fmt.Errorf("job %s status: %w", jobID, err)
		}
		res.Polls++
		res.Status = status
		if p.metrics != nil {
			p.metrics.RecordPoll(ctx, string(status))
		}
		if status != previous {
			logger.Info("Job status changed", "status", status, "phase", PhaseOf(status))
			previous = status
		}

		phase := PhaseOf(status)
		if phase != PhasePending {
			n, err := p.drain(ctx, jobID, &res)
			if n > 0 && p.metrics != nil {
				p.metrics.RecordEventsEmitted(ctx, n)
			}
			if err != nil {
				return res, err
			}
		}
		if phase == PhaseTerminal {
			return res, nil
		}

		if err := p.sleep(ctx); err != nil {
			return res, err
		}
	}
}

// drain fetches events past the cursor and emits them in order.
// The cursor only moves forward.
func (p *Poller) drain(ctx context.Context, jobID string, res *PollResult) (int, error) {
	events, last, err := p.api.FetchNewEvents(ctx, jobID, res.LastCounter)
	if err != nil {
		return 0, fmt.Errorf("job %s events: %w", jobID, err)
	}

	emitted := 0
	for _, ev := range events {
		if ev.Counter <= res.LastCounter {
			continue
		}
		if err := p.sink.Emit(ev); err != nil {
			return emitted, fmt.Errorf("write event %d: %w", ev.Counter, err)
		}
		res.LastCounter = ev.Counter
		res.EventsEmitted++
		emitted++
	}
	if last > res.LastCounter {
		res.LastCounter = last
	}
	return emitted, nil
}

func (p *Poller) sleep(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
