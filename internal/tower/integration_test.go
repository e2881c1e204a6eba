package tower_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"towerrunner/internal/apperrors"
	"towerrunner/internal/tower"
	"towerrunner/internal/towertest"
	"towerrunner/internal/transport"
)

func newRunner(t *testing.T, srv *towertest.Server, template string, pageSize int, out *bytes.Buffer) *tower.Runner {
	t.Helper()
	doer := transport.New(transport.Config{Username: "admin", Password: "secret"}, nil)
	client := tower.NewClient(doer, tower.ClientConfig{Host: srv.URL, PageSize: pageSize})
	return tower.NewRunner(client, tower.RunnerConfig{
		Template: template,
		Sink:     tower.WriterSink{W: out},
	})
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()
	srv := towertest.NewServer()
	defer srv.Close()
	srv.RequireAuth("admin", "secret")
	srv.AddTemplate("deploy", 7)
	srv.SetLaunch(http.StatusCreated, 42)
	srv.SetSteps(
		towertest.Step{Status: "pending"},
		towertest.Step{Status: "pending"},
		towertest.Step{Status: "running", Events: []tower.Event{{Counter: 1, Stdout: "TASK [ping]"}, {Counter: 0, Stdout: "PLAY [all]"}}},
		towertest.Step{Status: "successful", Events: []tower.Event{{Counter: 2, Stdout: "ok: [web]"}}},
	)

	var out bytes.Buffer
	res, err := newRunner(t, srv, "deploy", 2, &out).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, tower.StatusSuccessful, res.Status)
	assert.Equal(t, "7", res.TemplateID)
	assert.Equal(t, "42", res.JobID)
	assert.Equal(t, 3, res.EventsEmitted)
	assert.Equal(t, "PLAY [all]\nTASK [ping]\nok: [web]\n", out.String())

	assert.Equal(t, 1, srv.Count(http.MethodPost, "/api/v1/job_templates/7/launch/"))
	assert.Equal(t, 4, srv.Count(http.MethodGet, "/api/v1/jobs/42/"))

	want := transport.BasicAuth("admin", "secret")
	for _, r := range srv.Requests() {
		assert.Equal(t, want, r.Authorization, "%s %s", r.Method, r.Path)
	}
}

func TestRun_TemplateNotFound(t *testing.T) {
	t.Parallel()
	srv := towertest.NewServer()
	defer srv.Close()

	var out bytes.Buffer
	_, err := newRunner(t, srv, "missing", 10, &out).Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrTemplateNotFound)
	assert.Len(t, srv.Requests(), 1, "no launch after an empty lookup")
}

func TestRun_BadCredentials(t *testing.T) {
	t.Parallel()
	srv := towertest.NewServer()
	defer srv.Close()
	srv.RequireAuth("admin", "other")
	srv.AddTemplate("deploy", 7)

	var out bytes.Buffer
	_, err := newRunner(t, srv, "deploy", 10, &out).Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrRemote)
	assert.Equal(t, http.StatusUnauthorized, apperrors.StatusCode(err))
}

func TestRun_StatusFailureStopsPolling(t *testing.T) {
	t.Parallel()
	srv := towertest.NewServer()
	defer srv.Close()
	srv.AddTemplate("deploy", 7)
	srv.SetSteps(
		towertest.Step{Status: "running"},
		towertest.Step{Code: http.StatusInternalServerError},
		towertest.Step{Status: "successful"},
	)

	var out bytes.Buffer
	_, err := newRunner(t, srv, "deploy", 10, &out).Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrRemote)
	assert.Equal(t, http.StatusInternalServerError, apperrors.StatusCode(err))
	assert.Equal(t, 2, srv.Count(http.MethodGet, "/api/v1/jobs/42/"))
}

func TestRun_EventsFailure(t *testing.T) {
	t.Parallel()
	srv := towertest.NewServer()
	defer srv.Close()
	srv.AddTemplate("deploy", 7)
	srv.SetSteps(towertest.Step{Status: "running"})
	srv.FailEvents(http.StatusServiceUnavailable)

	var out bytes.Buffer
	_, err := newRunner(t, srv, "deploy", 10, &out).Run(context.Background())
	require.ErrorIs(t, err, apperrors.ErrRemote)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.StatusCode(err))
	assert.Empty(t, out.String())
}

func TestFetchNewEvents_AbsoluteNextFromServer(t *testing.T) {
	t.Parallel()
	srv := towertest.NewServer()
	defer srv.Close()
	srv.UseAbsoluteNext(true)
	srv.AddEvents(tower.Event{Counter: 0, Stdout: "a"}, tower.Event{Counter: 1, Stdout: "b"}, tower.Event{Counter: 2, Stdout: "c"})

	client := tower.NewClient(transport.New(transport.Config{}, nil), tower.ClientConfig{Host: srv.URL, PageSize: 1})
	events, last, err := client.FetchNewEvents(context.Background(), "42", tower.NoEventsDisplayed)
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, 2, last)
	assert.Equal(t, 3, srv.Count(http.MethodGet, "/api/v1/jobs/42/job_events/"))
}
