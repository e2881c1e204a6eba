package tower

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"

	"towerrunner/internal/apperrors"
)

// ErrPageLimit is returned when a fetch follows more "next" links than
// ClientConfig.MaxPages allows.
var ErrPageLimit = errors.New("job event page limit exceeded")

// eventBuffer reassembles events that arrive out of counter order.
// Counters never received are simply absent.
type eventBuffer struct {
	after  int
	byCntr map[int]string
}

func newEventBuffer(lastDisplayed int) *eventBuffer {
	return &eventBuffer{after: lastDisplayed, byCntr: make(map[int]string)}
}

// add records an event unless it was already displayed.
func (b *eventBuffer) add(ev Event) {
	if ev.Counter <= b.after {
		return
	}
	b.byCntr[ev.Counter] = ev.Stdout
}

// drain returns the buffered events in ascending counter order and the
// highest counter among them, or the original cursor when empty.
func (b *eventBuffer) drain() ([]Event, int) {
	counters := slices.Sorted(maps.Keys(b.byCntr))
	events := make([]Event, 0, len(counters))
	for _, c := range counters {
		events = append(events, Event{Counter: c, Stdout: b.byCntr[c]})
	}
	last := b.after
	if len(counters) > 0 {
		last = counters[len(counters)-1]
	}
	return events, last
}

// startPage is the events page holding the counter after lastDisplayed.
func startPage(lastDisplayed, pageSize int) int {
	if lastDisplayed < 0 {
		lastDisplayed = 0
	}
	return lastDisplayed/pageSize + 1
}

// FetchNewEvents returns the job's events with counters above lastDisplayed,
// in ascending counter order, and the new cursor. It starts at the page that
// should hold lastDisplayed and follows "next" links until they run out.
//
// A non-200 page aborts the whole fetch with apperrors.ErrRemote and no
// events; the caller retries from the same cursor on its next poll.
func (c *Client) FetchNewEvents(ctx context.Context, jobID string, lastDisplayed int) ([]Event, int, error) {
	buf := newEventBuffer(lastDisplayed)
	uri := JobEventsURL(c.host, jobID, c.pageSize, startPage(lastDisplayed, c.pageSize))

	for pages := 1; uri != ""; pages++ {
		if c.maxPages > 0 && pages > c.maxPages {
			return nil, lastDisplayed, fmt.Errorf("job %s: %w (%d pages)", jobID, ErrPageLimit, c.maxPages)
		}

		resp, err := c.get(ctx, uri)
		if err != nil {
			return nil, lastDisplayed, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, lastDisplayed, apperrors.Remote("tower.jobEvents", resp.StatusCode, resp.Message())
		}

		var page eventPage
		if err := resp.Decode(&page); err != nil {
			return nil, lastDisplayed, apperrors.Remote("tower.jobEvents", resp.StatusCode, "unreadable events page")
		}
		for _, ev := range page.Results {
			buf.add(ev)
		}

		uri = ""
		if page.Next != nil && *page.Next != "" {
			uri = ResolveNext(c.host, *page.Next)
		}
	}

	events, last := buf.drain()
	return events, last, nil
}
