// Package report publishes the outcome of a run.
package report

import (
	"context"
	"errors"

	"towerrunner/internal/tower"
)

// Reporter publishes a run's outcome. res is never nil; runErr is the error
// that ended the run, if any.
type Reporter interface {
	Report(ctx context.Context, res *tower.Result, runErr error) error
}

// Multi reports to every reporter in order and joins their errors.
type Multi []Reporter

// Report calls each reporter even when an earlier one fails.
func (m Multi) Report(ctx context.Context, res *tower.Result, runErr error) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Report(ctx, res, runErr); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
