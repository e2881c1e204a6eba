package tower

import (
	"context"
	"net/http"

	"towerrunner/internal/apperrors"
	"towerrunner/internal/transport"
)

// Launch starts a job from a template and returns the new job's id.
// Only 201 Created counts as success; the launch is never retried.
func (c *Client) Launch(ctx context.Context, templateID string) (string, error) {
	resp, err := c.doer.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URI:    JobLaunchURL(c.host, templateID),
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", apperrors.Remote("tower.launch", resp.StatusCode, resp.Message())
	}

	var launched launchResponse
	if err := resp.Decode(&launched); err != nil {
		return "", apperrors.Remote("tower.launch", resp.StatusCode, "unreadable launch response")
	}
	jobID := launched.ID
	if jobID == "" {
		jobID = launched.Job
	}
	if jobID == "" {
		return "", apperrors.Remote("tower.launch", resp.StatusCode, "missing job id")
	}
	return string(jobID), nil
}

// JobStatus returns the current status of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (Status, error) {
	resp, err := c.get(ctx, JobURL(c.host, jobID))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Remote("tower.jobStatus", resp.StatusCode, resp.Message())
	}

	var job jobDetail
	if err := resp.Decode(&job); err != nil {
		return "", apperrors.Remote("tower.jobStatus", resp.StatusCode, "unreadable job detail")
	}
	return job.Status, nil
}
