package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towerrunner/internal/apperrors"
	"towerrunner/internal/config"
	"towerrunner/internal/tower"
	"towerrunner/internal/towertest"
	"towerrunner/pkg/cloudevent"
)

var envKeys = []string{
	"TOWER_URL", "ENDPOINT_URL", "TOWER_USERNAME", "TOWER_PASSWORD", "TOWER_PASSWORD_FILE",
	"TOWER_JOB_TEMPLATE", "INPUT_JOBTEMPLATENAME", "TOWER_POLL_INTERVAL", "TOWER_PAGE_SIZE",
	"TOWER_MAX_PAGES", "TOWER_REQUEST_TIMEOUT", "TOWER_TRANSPORT_RETRIES", "TOWER_INSECURE",
	"TOWER_CALLBACK_URL", "TOWER_CALLBACK_KEY", "TOWER_CALLBACK_KEY_FILE", "METRICS_PORT",
	"PUSHGATEWAY_URL", "LOG_LEVEL", "LOG_FORMAT", "TOWER_PROFILE",
}

// clearEnv blanks every variable the command reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func newTower(t *testing.T) *towertest.Server {
	t.Helper()
	srv := towertest.NewServer()
	t.Cleanup(srv.Close)
	srv.RequireAuth("admin", "secret")
	srv.AddTemplate("deploy", 7)
	return srv
}

func baseArgs(srv *towertest.Server, template string) []string {
	return []string{
		"towerrunner",
		"--env-file", "",
		"--url", srv.URL,
		"--username", "admin",
		"--password", "secret",
		"--job-template", template,
		"--poll-interval", "1ms",
	}
}

func runApp(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := newApp(&stdout, &stderr).run(context.Background(), args)
	return code, stdout.String(), stderr.String()
}

func TestRun_Succeeded(t *testing.T) {
	clearEnv(t)
	srv := newTower(t)
	srv.SetSteps(
		towertest.Step{Status: "pending"},
		towertest.Step{Status: "running", Events: []tower.Event{{Counter: 0, Stdout: "PLAY [all]"}}},
		towertest.Step{Status: "successful", Events: []tower.Event{{Counter: 1, Stdout: "ok: [web]"}}},
	)

	code, stdout, stderr := runApp(t, baseArgs(srv, "deploy")...)
	assert.Equal(t, apperrors.ExitSucceeded, code, stderr)
	assert.Equal(t, "PLAY [all]\nok: [web]\n##vso[task.complete result=Succeeded;]\n", stdout)
	assert.Contains(t, stderr, "Job launched")
}

func TestRun_JobFailed(t *testing.T) {
	clearEnv(t)
	srv := newTower(t)
	srv.SetSteps(towertest.Step{Status: "failed", Events: []tower.Event{{Counter: 0, Stdout: "fatal: [web]"}}})

	code, stdout, _ := runApp(t, baseArgs(srv, "deploy")...)
	assert.Equal(t, apperrors.ExitJobFailed, code)
	assert.True(t, strings.HasSuffix(stdout, "##vso[task.complete result=Failed;]\n"), stdout)
}

func TestRun_TemplateNotFound(t *testing.T) {
	clearEnv(t)
	srv := newTower(t)

	code, stdout, _ := runApp(t, baseArgs(srv, "missing")...)
	assert.Equal(t, apperrors.ExitRunError, code)
	assert.Contains(t, stdout, `##vso[task.complete result=Failed;]resolve template: job template "missing" not found`)
	assert.Zero(t, srv.Count(http.MethodPost, "/api/v1/job_templates/7/launch/"))
}

func TestRun_MissingConfig(t *testing.T) {
	clearEnv(t)

	code, stdout, stderr := runApp(t, "towerrunner", "--env-file", "", "--username", "admin")
	assert.Equal(t, apperrors.ExitConfig, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "endpoint URL is required")
}

func TestRun_UnknownFlag(t *testing.T) {
	clearEnv(t)

	code, _, _ := runApp(t, "towerrunner", "--no-such-flag")
	assert.Equal(t, apperrors.ExitConfig, code)
}

func TestRun_Webhook(t *testing.T) {
	clearEnv(t)
	srv := newTower(t)
	srv.SetSteps(towertest.Step{Status: "successful"})

	events := make(chan []byte, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if cloudevent.Verify(body, r.Header.Get(cloudevent.SignatureHeader), "hook-key") {
			events <- body
		}
	}))
	defer hook.Close()

	args := append(baseArgs(srv, "deploy"), "--callback-url", hook.URL, "--callback-key", "hook-key")
	code, _, stderr := runApp(t, args...)
	require.Equal(t, apperrors.ExitSucceeded, code, stderr)

	select {
	case body := <-events:
		var event cloudevent.CloudEvent
		require.NoError(t, json.Unmarshal(body, &event))
		assert.Equal(t, "towerrunner.job.completed", event.Type)
		assert.Equal(t, "successful", event.Data["status"])
	case <-time.After(time.Second):
		t.Fatal("no signed completion event received")
	}
}

func TestRun_JSONLogsToStderr(t *testing.T) {
	clearEnv(t)
	srv := newTower(t)
	srv.SetSteps(towertest.Step{Status: "successful"})

	args := append(baseArgs(srv, "deploy"), "--log-format", "json", "--log-level", "debug")
	code, stdout, stderr := runApp(t, args...)
	require.Equal(t, apperrors.ExitSucceeded, code)
	assert.Equal(t, "##vso[task.complete result=Succeeded;]\n", stdout)

	first, _, _ := strings.Cut(stderr, "\n")
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(first), &line))
	assert.Contains(t, stderr, `"msg":"Tower request"`)
}

// captureConfig runs the command without executing the job.
func captureConfig(t *testing.T, args ...string) (config.RunConfig, int, string) {
	t.Helper()
	var stderr bytes.Buffer
	var got config.RunConfig
	a := newApp(io.Discard, &stderr)
	a.execute = func(_ context.Context, cfg config.RunConfig, _, _ io.Writer) int {
		got = cfg
		return 0
	}
	code := a.run(context.Background(), args)
	return got, code, stderr.String()
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(`
url: https://profile.example
username: profile-user
jobTemplate: profile-template
pollInterval: 3s
pageSize: 50
`), 0o600))

	t.Setenv("TOWER_USERNAME", "env-user")
	t.Setenv("TOWER_PASSWORD", "env-pass")
	t.Setenv("TOWER_PAGE_SIZE", "25")

	cfg, code, stderr := captureConfig(t,
		"towerrunner", "--env-file", "", "--profile", profile,
		"--page-size", "5", "--url", "https://flag.example/",
	)
	require.Equal(t, 0, code, stderr)

	assert.Equal(t, "https://flag.example", cfg.URL, "flag wins, trailing slash trimmed")
	assert.Equal(t, 5, cfg.PageSize, "flag beats env and profile")
	assert.Equal(t, "env-user", cfg.Username, "env beats profile")
	assert.Equal(t, "env-pass", cfg.Password)
	assert.Equal(t, "profile-template", cfg.JobTemplate, "profile fills the rest")
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, config.DefaultRequestTimeout, cfg.RequestTimeout, "default last")
	assert.Equal(t, 0, cfg.MaxPages)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearEnv(t)
	keys := []string{"TOWER_URL", "TOWER_USERNAME", "TOWER_PASSWORD", "TOWER_JOB_TEMPLATE"}
	for _, k := range keys {
		require.NoError(t, os.Unsetenv(k))
	}
	t.Cleanup(func() {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	})

	envFile := filepath.Join(t.TempDir(), "tower.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"TOWER_URL=https://dotenv.example\nTOWER_USERNAME=dot\nTOWER_PASSWORD=dotpass\nTOWER_JOB_TEMPLATE=dot-template\n",
	), 0o600))

	cfg, code, stderr := captureConfig(t, "towerrunner", "--env-file", envFile)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "https://dotenv.example", cfg.URL)
	assert.Equal(t, "dot", cfg.Username)
	assert.Equal(t, "dot-template", cfg.JobTemplate)
}

func TestLoadConfig_BadProfile(t *testing.T) {
	clearEnv(t)
	profile := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("nope: true\n"), 0o600))

	_, code, stderr := captureConfig(t, "towerrunner", "--env-file", "", "--profile", profile)
	assert.Equal(t, apperrors.ExitConfig, code)
	assert.Contains(t, stderr, "failed to parse profile")
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		res  *tower.Result
		err  error
		want int
	}{
		{"successful", &tower.Result{Status: tower.StatusSuccessful}, nil, apperrors.ExitSucceeded},
		{"failed", &tower.Result{Status: tower.StatusFailed}, nil, apperrors.ExitJobFailed},
		{"remote error", &tower.Result{}, apperrors.Remote("tower.launch", 500, ""), apperrors.ExitRunError},
		{"cancelled", &tower.Result{Status: "running"}, context.Canceled, apperrors.ExitRunError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, exitCode(tt.res, tt.err))
		})
	}
}

func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port)
}

func TestRun_ServesMetricsWhileRunning(t *testing.T) {
	clearEnv(t)
	srv := newTower(t)
	srv.SetSteps(towertest.Step{Status: "running"})
	port := freePort(t)

	done := make(chan int, 1)
	go func() {
		var stdout, stderr bytes.Buffer
		args := append(baseArgs(srv, "deploy"), "--metrics-port", port)
		done <- newApp(&stdout, &stderr).run(context.Background(), args)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:" + port + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(body), "tower_polls_total")
	}, 5*time.Second, 20*time.Millisecond)

	srv.SetSteps(towertest.Step{Status: "successful"})
	select {
	case code := <-done:
		assert.Equal(t, apperrors.ExitSucceeded, code)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after the job succeeded")
	}
}

func TestRun_InsecureAppliesToWebhook(t *testing.T) {
	tests := []struct {
		name      string
		insecure  bool
		delivered bool
	}{
		{"verified", false, false},
		{"insecure", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			srv := newTower(t)
			srv.SetSteps(towertest.Step{Status: "successful"})

			received := make(chan struct{}, 1)
			hook := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				received <- struct{}{}
			}))
			defer hook.Close()

			args := append(baseArgs(srv, "deploy"), "--callback-url", hook.URL)
			if tt.insecure {
				args = append(args, "--insecure")
			}
			code, _, stderr := runApp(t, args...)
			require.Equal(t, apperrors.ExitSucceeded, code, stderr)

			select {
			case <-received:
				assert.True(t, tt.delivered, "event delivered despite an untrusted certificate")
			default:
				assert.False(t, tt.delivered, "event not delivered: %s", stderr)
			}
		})
	}
}

func TestLoadConfig_ExplicitEnvZeroBeatsProfile(t *testing.T) {
	clearEnv(t)
	profile := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("insecure: true\ntransportRetries: 3\nmaxPages: 5\n"), 0o600))

	t.Setenv("TOWER_INSECURE", "false")
	t.Setenv("TOWER_TRANSPORT_RETRIES", "0")
	t.Setenv("TOWER_MAX_PAGES", "0")

	cfg, code, stderr := captureConfig(t,
		"towerrunner", "--env-file", "", "--profile", profile,
		"--url", "https://tower.example", "--username", "u", "--password", "p", "--job-template", "deploy",
	)
	require.Equal(t, 0, code, stderr)
	assert.False(t, cfg.Insecure)
	assert.Equal(t, 0, cfg.TransportRetries)
	assert.Equal(t, 0, cfg.MaxPages)
}

func TestLoadConfig_MalformedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOWER_PAGE_SIZE", "abc")

	_, code, stderr := captureConfig(t,
		"towerrunner", "--env-file", "",
		"--url", "https://tower.example", "--username", "u", "--password", "p", "--job-template", "deploy",
	)
	assert.Equal(t, apperrors.ExitConfig, code)
	assert.Contains(t, stderr, `TOWER_PAGE_SIZE must be an integer, got "abc"`)
}
