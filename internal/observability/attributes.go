// Package observability provides metrics and logging setup.
package observability

import (
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrEndpoint = "endpoint"
	attrStatus   = "status"
	attrJob      = "job_status"
	attrTemplate = "template"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func endpointAttr(uri string) attribute.KeyValue {
	return attribute.String(attrEndpoint, normalizeEndpoint(uri))
}

func statusAttr(code int) attribute.KeyValue {
	// 0 means no response was received
	if code == 0 {
		return attribute.String(attrStatus, "error")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func jobStatusAttr(status string) attribute.KeyValue {
	return attribute.String(attrJob, status)
}

func templateAttr(name string) attribute.KeyValue {
	return attribute.String(attrTemplate, name)
}

// idParents are path segments whose following segment is a resource id.
var idParents = map[string]bool{
	"jobs":          true,
	"job_templates": true,
}

// normalizeEndpoint strips host and query and replaces resource ids with
// placeholders: /api/v1/jobs/42/job_events/ -> /api/v1/jobs/{id}/job_events/
func normalizeEndpoint(uri string) string {
	path := uri
	if u, err := url.Parse(uri); err == nil {
		path = u.Path
	}

	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		if segments[i] != "" && idParents[segments[i-1]] {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// WithJobStatus returns a metric option with the job status attribute.
func WithJobStatus(status string) metric.MeasurementOption {
	return metric.WithAttributes(jobStatusAttr(status))
}
