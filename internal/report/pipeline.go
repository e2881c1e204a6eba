package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"towerrunner/internal/tower"
)

// Task results understood by Azure Pipelines.
const (
	ResultSucceeded = "Succeeded"
	ResultFailed    = "Failed"
)

// Pipeline writes an Azure Pipelines task.complete logging command.
type Pipeline struct {
	W io.Writer
}

// Report writes Succeeded for a successful job and Failed otherwise, with
// the run error as the message.
func (p Pipeline) Report(_ context.Context, res *tower.Result, runErr error) error {
	result, message := ResultFailed, ""
	switch {
	case runErr != nil:
		message = runErr.Error()
	case res.Succeeded():
		result = ResultSucceeded
	}
	_, err := fmt.Fprintf(p.W, "##vso[task.complete result=%s;]%s\n", result, escapeData(message))
	return err
}

var dataEscaper = strings.NewReplacer("%", "%AZP25", "\r", "%0D", "\n", "%0A")

// escapeData keeps a message on the single line a logging command allows.
func escapeData(s string) string {
	return dataEscaper.Replace(s)
}
