package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"towerrunner/internal/apperrors"
	"towerrunner/internal/config"
	"towerrunner/internal/observability"
	"towerrunner/internal/report"
	"towerrunner/internal/tower"
	"towerrunner/internal/transport"
	"towerrunner/pkg/cloudevent"
)

// execute performs one run with a validated config and returns the exit code.
func execute(ctx context.Context, cfg config.RunConfig, stdout, stderr io.Writer) int {
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "towerrunner:", err)
		return apperrors.ExitConfig
	}
	slog.SetDefault(logger)

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		slog.Error("Failed to set up metrics", "error", err)
		return apperrors.ExitRunError
	}

	if cfg.MetricsPort != "" {
		stopMetrics := serveMetrics(cfg.MetricsPort, metricsHandler)
		defer stopMetrics()
	}

	client := tower.NewClient(
		transport.New(transport.Config{
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.RequestTimeout,
			Insecure: cfg.Insecure,
			Retries:  cfg.TransportRetries,
		}, metrics),
		tower.ClientConfig{Host: cfg.URL, PageSize: cfg.PageSize, MaxPages: cfg.MaxPages},
	)
	runner := tower.NewRunner(client, tower.RunnerConfig{
		Template:     cfg.JobTemplate,
		PollInterval: cfg.PollInterval,
		Sink:         tower.WriterSink{W: stdout},
		Metrics:      metrics,
	})

	slog.Info("Starting run", "url", cfg.URL, "template", cfg.JobTemplate)
	res, runErr := runner.Run(ctx)

	// Reporting and pushing must still happen after an interrupt.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	reporters := report.Multi{report.Pipeline{W: stdout}}
	if cfg.CallbackURL != "" {
		sender := cloudevent.NewSender(transport.NewHTTPClient(cfg.RequestTimeout, cfg.Insecure))
		reporters = append(reporters, report.NewWebhook(sender, cfg.CallbackURL, cfg.CallbackKey))
	}
	if err := reporters.Report(finishCtx, res, runErr); err != nil {
		slog.Warn("Reporting incomplete", "error", err)
	}

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(finishCtx, cfg.PushgatewayURL, cfg.JobTemplate); err != nil {
			slog.Warn("Failed to push metrics", "error", err)
		}
	}

	return exitCode(res, runErr)
}

func exitCode(res *tower.Result, runErr error) int {
	switch {
	case runErr != nil:
		return apperrors.ExitCode(runErr)
	case res.Succeeded():
		return apperrors.ExitSucceeded
	default:
		return apperrors.ExitJobFailed
	}
}

// serveMetrics starts the metrics server and returns its shutdown func.
func serveMetrics(port string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting metrics server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}
}
