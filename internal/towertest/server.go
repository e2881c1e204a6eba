// Package towertest provides an in-process fake of the Tower API for tests.
package towertest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"towerrunner/internal/tower"
)

// Step is one scripted response of the job detail endpoint.
type Step struct {
	Status string        // Job status to report
	Code   int           // HTTP status (default: 200)
	Events []tower.Event // Events that become visible when this step is served
}

// Request is a request the server received.
type Request struct {
	Method        string
	Path          string
	Query         string
	Authorization string
}

// Server is a scripted Tower. Configure it before the code under test runs.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	username     string
	password     string
	templates    map[string][]int
	launchCode   int
	launchJobID  int
	steps        []Step
	stepIndex    int
	events       []tower.Event
	eventsCode   int
	absoluteNext bool
	requests     []Request
}

// NewServer starts a fake Tower. Stop it with Close.
func NewServer() *Server {
	s := &Server{
		templates:   make(map[string][]int),
		launchCode:  http.StatusCreated,
		launchJobID: 42,
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.authenticate)
	r.Get("/api/v1/job_templates/", s.listTemplates)
	r.Post("/api/v1/job_templates/{id}/launch/", s.launch)
	r.Get("/api/v1/jobs/{id}/", s.jobDetail)
	r.Get("/api/v1/jobs/{id}/job_events/", s.jobEvents)

	s.Server = httptest.NewServer(r)
	return s
}

// RequireAuth makes every request without these Basic credentials fail with 401.
func (s *Server) RequireAuth(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.password = username, password
}

// AddTemplate registers a template. Adding a name twice makes it ambiguous.
func (s *Server) AddTemplate(name string, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = append(s.templates[name], id)
}

// SetLaunch sets the launch response code and job id.
func (s *Server) SetLaunch(code, jobID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launchCode, s.launchJobID = code, jobID
}

// SetSteps scripts the job detail endpoint. Each request serves the next
// step; the last step repeats.
func (s *Server) SetSteps(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = steps
	s.stepIndex = 0
}

// AddEvents makes events visible immediately, in the order given.
func (s *Server) AddEvents(events ...tower.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

// FailEvents makes the events endpoint answer with code. Zero restores 200.
func (s *Server) FailEvents(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventsCode = code
}

// UseAbsoluteNext makes "next" links absolute URLs instead of host-relative paths.
func (s *Server) UseAbsoluteNext(absolute bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absoluteNext = absolute
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many received requests had the given method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			Authorization: r.Header.Get("Authorization"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		username, password := s.username, s.password
		s.mu.Unlock()

		if username != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != username || p != password {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := s.templates[r.URL.Query().Get("name__exact")]
	s.mu.Unlock()

	results := make([]map[string]int, 0, len(ids))
	for _, id := range ids {
		results = append(results, map[string]int{"id": id})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

func (s *Server) launch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	code, jobID := s.launchCode, s.launchJobID
	s.mu.Unlock()

	if code != http.StatusCreated {
		writeJSON(w, code, map[string]string{"detail": "launch rejected"})
		return
	}
	writeJSON(w, code, map[string]int{"id": jobID, "job": jobID})
}

func (s *Server) jobDetail(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	step := s.steps[s.stepIndex]
	if s.stepIndex < len(s.steps)-1 {
		s.stepIndex++
	}
	s.events = append(s.events, step.Events...)
	s.mu.Unlock()

	code := step.Code
	if code == 0 {
		code = http.StatusOK
	}
	if code != http.StatusOK {
		writeJSON(w, code, map[string]string{"detail": "scripted failure"})
		return
	}

	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	writeJSON(w, code, map[string]any{"id": id, "status": step.Status})
}

// jobEvents pages through visible events in the order they were added.
func (s *Server) jobEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pageSize, err := strconv.Atoi(q.Get("page_size"))
	if err != nil || pageSize <= 0 {
		pageSize = 25
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page <= 0 {
		page = 1
	}

	s.mu.Lock()
	code := s.eventsCode
	events := append([]tower.Event(nil), s.events...)
	absolute := s.absoluteNext
	s.mu.Unlock()

	if code != 0 && code != http.StatusOK {
		writeJSON(w, code, map[string]string{"detail": "scripted failure"})
		return
	}

	start := min((page-1)*pageSize, len(events))
	end := min(start+pageSize, len(events))

	var next *string
	if end < len(events) {
		link := fmt.Sprintf("/api/v1/jobs/%s/job_events/?page_size=%d&page=%d", chi.URLParam(r, "id"), pageSize, page+1)
		if absolute {
			link = s.URL + link
		}
		next = &link
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(events),
		"next":    next,
		"results": events[start:end],
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
