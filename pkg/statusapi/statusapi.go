// Package statusapi is a read-only echo HTTP surface mirroring the
// `status`/`work` CLI commands, run alongside the supervisor so operators
// have a way to check on a pipeline run beyond a single terminal.
package statusapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/basaltrun/slurmpipe/pkg/echoutil"
	"github.com/basaltrun/slurmpipe/pkg/store"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// Server wraps an echo.Echo bound to a single run's Store.
type Server struct {
	echo *echo.Echo
	st   store.Store
}

// New builds the status API. logLevel and log follow the same properties
// the supervisor itself logs at.
func New(st store.Store, log *zap.SugaredLogger, logLevel string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	echoutil.SetLevel(e, logLevel)
	e.Use(echoutil.NewRequestLogger(log))

	s := &Server{echo: e, st: st}
	e.GET("/jobs", s.listJobs)
	e.GET("/jobs/:name", s.jobSummary)
	e.GET("/jobs/:name/packages", s.jobPackages)
	return s
}

// Start serves on addr until the process exits or Shutdown is called; it
// never returns nil, matching http.Server.ListenAndServe's contract.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// ServeHTTP lets Server stand in for http.Handler directly, for tests and
// for embedding under an external mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Shutdown gracefully stops the server, per echo.Echo.Shutdown's contract.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type jobSummaryResponse struct {
	Name    string `json:"name"`
	Pending int    `json:"pending"`
	Running int    `json:"running"`
	Done    int    `json:"succeeded"`
	Failed  int    `json:"failed"`
	Aborted int    `json:"cancelled"`
	Total   int    `json:"total"`
}

func summarize(name string, packages []*workpkg.WorkPackage) jobSummaryResponse {
	summary := jobSummaryResponse{Name: name, Total: len(packages)}
	for _, wp := range packages {
		switch wp.State {
		case workpkg.Pending:
			summary.Pending++
		case workpkg.Submitted, workpkg.Running, workpkg.Retryable:
			summary.Running++
		case workpkg.Succeeded:
			summary.Done++
		case workpkg.Failed:
			summary.Failed++
		case workpkg.Cancelled:
			summary.Aborted++
		}
	}
	return summary
}

// listJobs returns a per-job summary across the whole run.
func (s *Server) listJobs(c echo.Context) error {
	snapshot, err := s.st.Snapshot(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	summaries := make([]jobSummaryResponse, 0, len(snapshot))
	for name, packages := range snapshot {
		summaries = append(summaries, summarize(name, packages))
	}
	return c.JSON(http.StatusOK, summaries)
}

// jobSummary returns a single job's counts.
func (s *Server) jobSummary(c echo.Context) error {
	name := c.Param("name")
	packages, err := s.st.Get(c.Request().Context(), name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(packages) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "unknown job: "+name)
	}
	return c.JSON(http.StatusOK, summarize(name, packages))
}

type packageResponse struct {
	Index       int       `json:"index"`
	State       string    `json:"state"`
	Attempt     int       `json:"attempt"`
	ArrayJobID  string    `json:"array_job_id,omitempty"`
	TaskID      int       `json:"task_id,omitempty"`
	Stdout      string    `json:"stdout,omitempty"`
	Stderr      string    `json:"stderr,omitempty"`
	SubmittedAt time.Time `json:"submitted_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// jobPackages returns every work package belonging to a job, per-index.
func (s *Server) jobPackages(c echo.Context) error {
	name := c.Param("name")
	packages, err := s.st.Get(c.Request().Context(), name)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(packages) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "unknown job: "+name)
	}

	out := make([]packageResponse, len(packages))
	for i, wp := range packages {
		out[i] = packageResponse{
			Index:       wp.Index,
			State:       string(wp.State),
			Attempt:     wp.Attempt,
			ArrayJobID:  wp.External.ArrayJobID,
			TaskID:      wp.External.TaskID,
			Stdout:      wp.Logs.Stdout,
			Stderr:      wp.Logs.Stderr,
			SubmittedAt: wp.SubmittedAt,
			FinishedAt:  wp.FinishedAt,
		}
	}
	return c.JSON(http.StatusOK, out)
}
