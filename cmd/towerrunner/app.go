package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"towerrunner/internal/apperrors"
	"towerrunner/internal/config"
)

// app binds the command line to the output streams.
type app struct {
	stdout  io.Writer
	stderr  io.Writer
	execute func(ctx context.Context, cfg config.RunConfig, stdout, stderr io.Writer) int
	code    int
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, execute: execute}
}

// run parses args, executes the job and returns the process exit code.
func (a *app) run(ctx context.Context, args []string) int {
	cmd := a.command()
	if err := cmd.Run(ctx, args); err != nil {
		fmt.Fprintln(a.stderr, "towerrunner:", err)
		return apperrors.ExitConfig
	}
	return a.code
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:      "towerrunner",
		Usage:     "launch an Ansible Tower job template and follow its output",
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "Tower endpoint URL (TOWER_URL, ENDPOINT_URL)"},
			&cli.StringFlag{Name: "username", Usage: "Tower username (TOWER_USERNAME)"},
			&cli.StringFlag{Name: "password", Usage: "Tower password (TOWER_PASSWORD, TOWER_PASSWORD_FILE)"},
			&cli.StringFlag{Name: "job-template", Usage: "job template name (TOWER_JOB_TEMPLATE, INPUT_JOBTEMPLATENAME)"},
			&cli.DurationFlag{Name: "poll-interval", Usage: "delay between status polls (TOWER_POLL_INTERVAL)"},
			&cli.IntFlag{Name: "page-size", Usage: "job events page size (TOWER_PAGE_SIZE)"},
			&cli.IntFlag{Name: "max-pages", Usage: "pages followed per fetch, 0 for no limit (TOWER_MAX_PAGES)"},
			&cli.DurationFlag{Name: "request-timeout", Usage: "per-request timeout (TOWER_REQUEST_TIMEOUT)"},
			&cli.IntFlag{Name: "transport-retries", Usage: "retries after network failures (TOWER_TRANSPORT_RETRIES)"},
			&cli.BoolFlag{Name: "insecure", Usage: "skip TLS certificate verification for Tower and the webhook (TOWER_INSECURE)"},
			&cli.StringFlag{Name: "callback-url", Usage: "CloudEvent webhook for the result (TOWER_CALLBACK_URL)"},
			&cli.StringFlag{Name: "callback-key", Usage: "HMAC key for the webhook (TOWER_CALLBACK_KEY, TOWER_CALLBACK_KEY_FILE)"},
			&cli.StringFlag{Name: "metrics-port", Usage: "serve /metrics on this port while running (METRICS_PORT)"},
			&cli.StringFlag{Name: "pushgateway-url", Usage: "push metrics here before exiting (PUSHGATEWAY_URL)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (LOG_LEVEL)"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json (LOG_FORMAT)"},
			&cli.StringFlag{Name: "env-file", Usage: "dotenv file loaded before reading the environment", Value: ".env"},
			&cli.StringFlag{Name: "profile", Usage: "YAML file of defaults (TOWER_PROFILE)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				fmt.Fprintln(a.stderr, "towerrunner:", err)
				a.code = apperrors.ExitCode(err)
				return nil
			}
			a.code = a.execute(ctx, cfg, a.stdout, a.stderr)
			return nil
		},
	}
}

// loadConfig layers flags over the environment over the profile over defaults.
func loadConfig(cmd *cli.Command) (config.RunConfig, error) {
	if err := config.LoadEnvFile(cmd.String("env-file")); err != nil {
		return config.RunConfig{}, apperrors.Config("envFile", err.Error())
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return config.RunConfig{}, err
	}

	profilePath := config.GetEnv("TOWER_PROFILE", "")
	if cmd.IsSet("profile") {
		profilePath = cmd.String("profile")
	}
	profile, err := config.LoadProfile(profilePath)
	if err != nil {
		return config.RunConfig{}, apperrors.Config("profile", err.Error())
	}
	cfg.ApplyProfile(profile)

	applyFlags(cmd, cfg)

	out := cfg.WithDefaults()
	if err := out.Validate(); err != nil {
		return config.RunConfig{}, err
	}
	return out, nil
}

func applyFlags(cmd *cli.Command, cfg *config.RunConfig) {
	stringFlags := map[string]*string{
		"url":             &cfg.URL,
		"username":        &cfg.Username,
		"password":        &cfg.Password,
		"job-template":    &cfg.JobTemplate,
		"callback-url":    &cfg.CallbackURL,
		"callback-key":    &cfg.CallbackKey,
		"metrics-port":    &cfg.MetricsPort,
		"pushgateway-url": &cfg.PushgatewayURL,
		"log-level":       &cfg.LogLevel,
		"log-format":      &cfg.LogFormat,
	}
	for name, dst := range stringFlags {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}

	intFlags := map[string]*int{
		"page-size":         &cfg.PageSize,
		"max-pages":         &cfg.MaxPages,
		"transport-retries": &cfg.TransportRetries,
	}
	for name, dst := range intFlags {
		if cmd.IsSet(name) {
			*dst = cmd.Int(name)
		}
	}

	if cmd.IsSet("poll-interval") {
		cfg.PollInterval = cmd.Duration("poll-interval")
	}
	if cmd.IsSet("request-timeout") {
		cfg.RequestTimeout = cmd.Duration("request-timeout")
	}
	if cmd.IsSet("insecure") {
		cfg.Insecure = cmd.Bool("insecure")
	}
}
