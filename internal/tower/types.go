// Package tower launches Tower job templates and follows their output.
//
// The flow is strictly sequential: resolve the template by name, launch a
// job, then poll the job's status while reassembling its paginated events
// into counter order until the job reaches a terminal status.
package tower

import (
	"encoding/json"
	"fmt"
)

// Status is a job status as reported by Tower. Only pending, successful and
// failed are significant; every other value means the job is still active.
type Status string

// Significant statuses.
const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further status change is expected.
func (s Status) IsTerminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

// Phase is the polling state derived from a status.
type Phase int

const (
	PhasePending  Phase = iota // Job queued, no output to fetch yet
	PhaseActive                // Any non-pending, non-terminal status
	PhaseTerminal              // successful or failed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// PhaseOf maps a status to its polling phase. Unrecognised statuses are active.
func PhaseOf(s Status) Phase {
	switch {
	case s == StatusPending:
		return PhasePending
	case s.IsTerminal():
		return PhaseTerminal
	default:
		return PhaseActive
	}
}

// NoEventsDisplayed is the cursor before any event has been written.
// It sorts below every counter Tower can assign.
const NoEventsDisplayed = -1

// Event is one unit of job output.
type Event struct {
	Counter int    `json:"counter"`
	Stdout  string `json:"stdout"`
}

// ID is an opaque Tower identifier. Tower sends ids as JSON numbers; strings
// are accepted too.
type ID string

// UnmarshalJSON accepts a JSON number, string, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a number or string: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// templateList is the body of a template lookup.
type templateList struct {
	Results []struct {
		ID ID `json:"id"`
	} `json:"results"`
}

// launchResponse is the body of a successful launch.
type launchResponse struct {
	ID  ID `json:"id"`
	Job ID `json:"job"`
}

// jobDetail is the part of a job resource the poller reads.
type jobDetail struct {
	Status Status `json:"status"`
}

// eventPage is one page of a job_events listing.
type eventPage struct {
	Count   int     `json:"count"`
	Results []Event `json:"results"`
	Next    *string `json:"next"`
}
