// Package slurmrest talks to a running slurmrestd, authenticating with a
// short-lived JWT bearer token, per spec.md §4.4's SubmitArray/Query/
// Cancel/ListActive contract.
package slurmrest

import (
	_ "embed"

	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	xe "github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/scheduler"
)

// LauncherScript is the small, versioned asset the adapter owns per
// spec.md §9 — a static shim with no templating, just argv/env plumbing
// into the pipelinectl-launcher binary.
//
//go:embed launcher.sh
var LauncherScript []byte

// TokenSigner mints a slurmrestd-compatible bearer token. slurmrestd's
// JWT auth plugin verifies HS256 tokens signed with the cluster's
// jwt_hs256.key; this package only needs to produce one, not verify it.
type TokenSigner struct {
	secret   []byte
	username string
	ttl      time.Duration
}

func NewTokenSigner(secret []byte, username string, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: secret, username: username, ttl: ttl}
}

type slurmClaims struct {
	jwt.RegisteredClaims
	Sun string `json:"sun"` // slurmrestd expects the username under "sun"
}

// Sign mints a fresh token. slurmrestd tokens are typically short-lived,
// so this is called once per request round rather than cached long-term.
func (s *TokenSigner) Sign() (string, error) {
	now := time.Now()
	claims := slurmClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Sun: s.username,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.secret)
}

// Client is a scheduler.Adapter backed by slurmrestd's HTTP API.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	signer     *TokenSigner
	limiter    *rate.Limiter
}

type Option func(*Client)

// WithRateLimit caps outbound requests per second so a large pipeline
// doesn't hammer the scheduler daemon.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(baseURL, apiVersion string, signer *TokenSigner, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		limiter:    rate.NewLimiter(rate.Limit(10), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return xe.WithClass(xe.ClassTransientQuery, xe.Wrap(err))
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return xe.Wrap(err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return xe.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.signer.Sign()
	if err != nil {
		return xe.Wrap(err)
	}
	req.Header.Set("X-SLURM-USER-TOKEN", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xe.WithClass(xe.ClassTransientQuery, xe.Wrap(err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return xe.Wrap(err)
	}

	if resp.StatusCode >= 500 {
		return xe.WithClass(xe.ClassTransientQuery, xe.New(fmt.Sprintf("slurmrestd %s %s: %d: %s", method, path, resp.StatusCode, string(payload))))
	}
	if resp.StatusCode >= 400 {
		return xe.WithClass(xe.ClassSubmission, xe.New(fmt.Sprintf("slurmrestd %s %s: %d: %s", method, path, resp.StatusCode, string(payload))))
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

type submitJobDescription struct {
	Name          string            `json:"name"`
	Account       string            `json:"account,omitempty"`
	Partition     string            `json:"partition,omitempty"`
	Script        string            `json:"script"`
	Array         string            `json:"array"`
	CPUsPerTask   int               `json:"cpus_per_task"`
	TimeLimit     int               `json:"time_limit"` // minutes, per slurmrestd's schema
	MemoryPerNode string            `json:"memory_per_node,omitempty"`
	Environment   map[string]string `json:"environment"`
	StandardOutput string           `json:"standard_output"`
	StandardError  string           `json:"standard_error"`
}

type submitRequest struct {
	Job submitJobDescription `json:"job"`
}

type submitResponse struct {
	JobID int `json:"job_id"`
}

func (c *Client) SubmitArray(ctx context.Context, req scheduler.SubmitRequest) (scheduler.ArrayJobID, error) {
	desc := submitJobDescription{
		Name:           req.Name,
		Account:        req.Account,
		Script:         string(LauncherScript),
		Array:          fmt.Sprintf("0-%d", req.ArraySize-1),
		CPUsPerTask:    req.CPUs,
		TimeLimit:      int(req.Time.Minutes()),
		MemoryPerNode:  req.Memory,
		StandardOutput: req.Stdio.Stdout,
		StandardError:  req.Stdio.Stderr,
		Environment: map[string]string{
			"CONDA_ENV": req.CondaEnv,
			"SCRIPT":    req.Script,
			"WORK_FILE": req.WorkFile,
		},
	}

	var out submitResponse
	if err := c.do(ctx, http.MethodPost, "/slurm/"+c.apiVersion+"/job/submit", submitRequest{Job: desc}, &out); err != nil {
		return "", err
	}
	return scheduler.ArrayJobID(strconv.Itoa(out.JobID)), nil
}

type queryResponse struct {
	Jobs []struct {
		ArrayTaskID int    `json:"array_task_id"`
		JobState    string `json:"job_state"`
		ExitCode    struct {
			ReturnCode int `json:"return_code"`
		} `json:"exit_code"`
	} `json:"jobs"`
}

func (c *Client) Query(ctx context.Context, id scheduler.ArrayJobID) (map[int]scheduler.TaskState, error) {
	var out queryResponse
	if err := c.do(ctx, http.MethodGet, "/slurm/"+c.apiVersion+"/job/"+string(id), nil, &out); err != nil {
		return nil, err
	}

	states := make(map[int]scheduler.TaskState, len(out.Jobs))
	for _, j := range out.Jobs {
		states[j.ArrayTaskID] = scheduler.TaskState{
			Status:   translateJobState(j.JobState),
			ExitCode: j.ExitCode.ReturnCode,
		}
	}
	return states, nil
}

func translateJobState(s string) scheduler.TaskStatus {
	switch strings.ToUpper(s) {
	case "PENDING":
		return scheduler.TaskPending
	case "RUNNING", "COMPLETING", "CONFIGURING":
		return scheduler.TaskRunning
	case "COMPLETED":
		return scheduler.TaskSucceeded
	default:
		// FAILED, TIMEOUT, OUT_OF_MEMORY, CANCELLED, NODE_FAIL, etc. — all
		// surface as a failed task; the supervisor's retry policy decides
		// what happens next.
		return scheduler.TaskFailed
	}
}

func (c *Client) Cancel(ctx context.Context, id scheduler.ArrayJobID, taskIDs ...int) error {
	path := "/slurm/" + c.apiVersion + "/job/" + string(id)
	if len(taskIDs) == 0 {
		return c.do(ctx, http.MethodDelete, path, nil, nil)
	}
	for _, t := range taskIDs {
		if err := c.do(ctx, http.MethodDelete, path+"_"+strconv.Itoa(t), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

type listActiveResponse struct {
	Jobs []struct {
		JobID int    `json:"job_id"`
		Name  string `json:"name"`
	} `json:"jobs"`
}

func (c *Client) ListActive(ctx context.Context, account, namePrefix string) ([]scheduler.ArrayJobID, error) {
	path := "/slurm/" + c.apiVersion + "/jobs"
	if account != "" {
		path += "?account=" + account
	}

	var out listActiveResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	ids := make([]scheduler.ArrayJobID, 0, len(out.Jobs))
	for _, j := range out.Jobs {
		if namePrefix != "" && !strings.HasPrefix(j.Name, namePrefix) {
			continue
		}
		ids = append(ids, scheduler.ArrayJobID(strconv.Itoa(j.JobID)))
	}
	return ids, nil
}
