package apperrors

import "errors"

// Process exit codes reported to the hosting pipeline.
const (
	ExitSucceeded = 0
	ExitJobFailed = 1
	ExitRunError  = 2
	ExitConfig    = 3
)

// ExitCode maps an error to the process exit code.
// A nil error maps to ExitSucceeded; the job's own outcome is decided by the caller.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSucceeded
	case errors.Is(err, ErrConfig):
		return ExitConfig
	default:
		return ExitRunError
	}
}
