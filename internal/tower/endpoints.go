package tower

import (
	"fmt"
	"net/url"
	"strings"
)

// API paths, relative to the Tower host.
const (
	templateLookupPath = "%s/api/v1/job_templates/?name__exact=%s"
	jobLaunchPath      = "%s/api/v1/job_templates/%s/launch/"
	jobPath            = "%s/api/v1/jobs/%s/"
	jobEventsPath      = "%s/api/v1/jobs/%s/job_events/?page_size=%d&page=%d"
)

// TemplateLookupURL returns the URI listing templates whose name matches exactly.
func TemplateLookupURL(host, name string) string {
	return fmt.Sprintf(templateLookupPath, trimHost(host), url.QueryEscape(name))
}

// JobLaunchURL returns the URI that launches a job from a template.
func JobLaunchURL(host, templateID string) string {
	return fmt.Sprintf(jobLaunchPath, trimHost(host), templateID)
}

// JobURL returns the URI of a job's detail resource.
func JobURL(host, jobID string) string {
	return fmt.Sprintf(jobPath, trimHost(host), jobID)
}

// JobEventsURL returns the URI of one page of a job's events.
func JobEventsURL(host, jobID string, pageSize, page int) string {
	return fmt.Sprintf(jobEventsPath, trimHost(host), jobID, pageSize, page)
}

// ResolveNext turns a "next" link from a listing into a full URI.
// Tower returns host-relative links; absolute links are used as-is.
func ResolveNext(host, next string) string {
	if strings.HasPrefix(next, "http://") || strings.HasPrefix(next, "https://") {
		return next
	}
	return trimHost(host) + next
}

func trimHost(host string) string {
	return strings.TrimRight(host, "/")
}
