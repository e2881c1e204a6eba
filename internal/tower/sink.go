package tower

import (
	"fmt"
	"io"
	"strings"
)

// Sink receives job output in counter order.
type Sink interface {
	Emit(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) error {
	return f(ev)
}

// WriterSink writes each event's stdout as one line. Events with no output
// are skipped.
type WriterSink struct {
	W io.Writer
}

// Emit writes ev.Stdout followed by a single newline.
func (s WriterSink) Emit(ev Event) error {
	if ev.Stdout == "" {
		return nil
	}
	_, err := fmt.Fprintln(s.W, strings.TrimSuffix(ev.Stdout, "\n"))
	return err
}
