package tower

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// API is the full set of Tower calls a run makes. *Client implements it.
type API interface {
	JobAPI
	Resolve(ctx context.Context, name string) (string, error)
	Launch(ctx context.Context, templateID string) (string, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Template     string        // Job template name
	PollInterval time.Duration // Delay between status polls
	Sink         Sink          // Receives job output
	Metrics      Metrics       // Optional
}

// Result describes a run, complete or not. Fields are filled as far as the
// run progressed.
type Result struct {
	RunID         string
	Template      string
	TemplateID    string
	JobID         string
	Status        Status
	EventsEmitted int
	Polls         int
	Duration      time.Duration // Whole run, template lookup included
}

// Succeeded reports whether the job finished with status successful.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSuccessful
}

// Runner performs one resolve, launch and poll sequence.
type Runner struct {
	api    API
	cfg    RunnerConfig
	poller *Poller
}

// NewRunner creates a Runner.
func NewRunner(api API, cfg RunnerConfig) *Runner {
	return &Runner{
		api:    api,
		cfg:    cfg,
		poller: NewPoller(api, cfg.Sink, cfg.PollInterval, cfg.Metrics),
	}
}

// Run resolves the template, launches a job and follows it to completion.
// The returned Result is never nil. A failed job is not an error; check
// Result.Status.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Template: r.cfg.Template}
	logger := slog.With("component", "runner", "runId", res.RunID, "template", r.cfg.Template)
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	templateID, err := r.api.Resolve(ctx, r.cfg.Template)
	if err != nil {
		logger.Error("Template lookup failed", "error", err)
		return res, fmt.Errorf("resolve template: %w", err)
	}
	res.TemplateID = templateID
	logger = logger.With("templateId", templateID)

	jobID, err := r.api.Launch(ctx, templateID)
	if err != nil {
		logger.Error("Job launch failed", "error", err)
		return res, fmt.Errorf("launch job: %w", err)
	}
	res.JobID = jobID
	logger = logger.With("jobId", jobID)
	logger.Info("Job launched")
	launched := time.Now()

	pr, err := r.poller.Poll(ctx, jobID)
	res.Status = pr.Status
	res.EventsEmitted = pr.EventsEmitted
	res.Polls = pr.Polls
	if err != nil {
		logger.Error("Job polling failed", "error", err, "status", pr.Status)
		return res, err
	}

	jobDuration := time.Since(launched)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordJobCompleted(ctx, r.cfg.Template, string(pr.Status), jobDuration.Seconds())
	}
	logger.Info("Job finished", "status", pr.Status, "events", pr.EventsEmitted, "duration", jobDuration)
	return res, nil
}
