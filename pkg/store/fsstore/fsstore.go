// Package fsstore is the authoritative work-package store: one append-only
// JSON-lines log per job, satisfying spec.md §4.5's streamability
// requirement (a directory of small files, safe to tail).
package fsstore

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/basaltrun/slurmpipe/pkg/param"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

func secondsToDuration(s int64) time.Duration { return time.Duration(s) * time.Second }

func unixTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

// line is the JSON-serializable shape of one log entry. Every state
// transition of a WorkPackage is appended as a new line; the current
// state of a package is the last line mentioning its index.
type line struct {
	Index       int                     `json:"index"`
	Params      map[string]param.Value  `json:"params"`
	CPUs        int                     `json:"cpus"`
	TimeSeconds int64                   `json:"time_seconds"`
	Memory      string                  `json:"memory,omitempty"`
	State       workpkg.State           `json:"state"`
	Attempt     int                     `json:"attempt"`
	ArrayJobID  string                  `json:"array_job_id,omitempty"`
	TaskID      int                     `json:"task_id,omitempty"`
	Stdout      string                  `json:"stdout,omitempty"`
	Stderr      string                  `json:"stderr,omitempty"`
	ExitCode    int                     `json:"exit_code,omitempty"`
	StderrTail  string                  `json:"stderr_tail,omitempty"`
	SubmittedAt int64                   `json:"submitted_at,omitempty"`
	FinishedAt  int64                   `json:"finished_at,omitempty"`
}

// Store is a Store implementation rooted at a run directory
// (log_dir/<run_id>/). Every job gets its own <job_name>.log file.
type Store struct {
	dir string

	mu   sync.Mutex
	logs map[string]*os.File
}

func Open(runDir string) *Store {
	return &Store{dir: runDir, logs: map[string]*os.File{}}
}

func (s *Store) logPath(jobName string) string {
	return filepath.Join(s.dir, jobName+".log")
}

func (s *Store) logFile(jobName string) (*os.File, error) {
	if f, ok := s.logs[jobName]; ok {
		return f, nil
	}
	f, err := openAppend(s.logPath(jobName))
	if err != nil {
		return nil, err
	}
	s.logs[jobName] = f
	return f, nil
}

// openAppend creates the run directory if missing and opens the job log
// for append, following the shape of pkg/io.CreateAll but with O_APPEND
// instead of O_TRUNC — this is a log, not a rewritten file.
func openAppend(name string) (*os.File, error) {
	dirname := filepath.Dir(name)
	if err := os.MkdirAll(dirname, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
}

func (s *Store) Upsert(_ context.Context, wp *workpkg.WorkPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.logFile(wp.JobName)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(toLine(wp))
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')

	if _, err := f.Write(encoded); err != nil {
		return err
	}
	return f.Sync()
}

func toLine(wp *workpkg.WorkPackage) line {
	l := line{
		Index:       wp.Index,
		Params:      wp.Params,
		CPUs:        wp.Resources.CPUs,
		TimeSeconds: int64(wp.Resources.Time.Seconds()),
		Memory:      wp.Resources.Memory,
		State:       wp.State,
		Attempt:     wp.Attempt,
		ArrayJobID:  wp.External.ArrayJobID,
		TaskID:      wp.External.TaskID,
		Stdout:      wp.Logs.Stdout,
		Stderr:      wp.Logs.Stderr,
	}
	if wp.LastError != nil {
		l.ExitCode = wp.LastError.ExitCode
		l.StderrTail = wp.LastError.StderrTail
	}
	if !wp.SubmittedAt.IsZero() {
		l.SubmittedAt = wp.SubmittedAt.Unix()
	}
	if !wp.FinishedAt.IsZero() {
		l.FinishedAt = wp.FinishedAt.Unix()
	}
	return l
}

func (s *Store) Get(_ context.Context, jobName string) ([]*workpkg.WorkPackage, error) {
	byIndex, err := s.replay(jobName)
	if err != nil {
		return nil, err
	}
	return sortedByIndex(byIndex), nil
}

func (s *Store) ByExternal(_ context.Context, id workpkg.ExternalID) (*workpkg.WorkPackage, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		jobName := entry.Name()[:len(entry.Name())-len(".log")]
		byIndex, err := s.replay(jobName)
		if err != nil {
			return nil, err
		}
		for _, wp := range byIndex {
			if wp.External == id {
				return wp, nil
			}
		}
	}
	return nil, nil
}

func (s *Store) Snapshot(_ context.Context) (map[string][]*workpkg.WorkPackage, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]*workpkg.WorkPackage{}, nil
		}
		return nil, err
	}

	out := map[string][]*workpkg.WorkPackage{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		jobName := entry.Name()[:len(entry.Name())-len(".log")]
		byIndex, err := s.replay(jobName)
		if err != nil {
			return nil, err
		}
		out[jobName] = sortedByIndex(byIndex)
	}
	return out, nil
}

// replay reads a job's log, folding it into the latest state per index. A
// trailing partial line (a crash mid-write) is discarded rather than
// erroring out, per spec.md §4.5 — the caller re-queries that package
// against the scheduler adapter instead.
func (s *Store) replay(jobName string) (map[int]*workpkg.WorkPackage, error) {
	f, err := os.Open(s.logPath(jobName))
	if err != nil {
		if os.IsNotExist(err) {
			return map[int]*workpkg.WorkPackage{}, nil
		}
		return nil, err
	}
	defer f.Close()

	byIndex := map[int]*workpkg.WorkPackage{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			// partial/corrupt trailing line: stop here, keep what we have.
			break
		}
		byIndex[l.Index] = fromLine(jobName, l)
	}
	return byIndex, nil
}

func fromLine(jobName string, l line) *workpkg.WorkPackage {
	wp := &workpkg.WorkPackage{
		Key:    workpkg.Key{JobName: jobName, Index: l.Index},
		Params: l.Params,
		Resources: workpkg.Resources{
			CPUs:   l.CPUs,
			Time:   secondsToDuration(l.TimeSeconds),
			Memory: l.Memory,
		},
		State:   l.State,
		Attempt: l.Attempt,
		External: workpkg.ExternalID{
			ArrayJobID: l.ArrayJobID,
			TaskID:     l.TaskID,
		},
		Logs: workpkg.LogPaths{Stdout: l.Stdout, Stderr: l.Stderr},
	}
	if l.ExitCode != 0 || l.StderrTail != "" {
		wp.LastError = &workpkg.LastError{ExitCode: l.ExitCode, StderrTail: l.StderrTail}
	}
	if l.SubmittedAt != 0 {
		wp.SubmittedAt = unixTime(l.SubmittedAt)
	}
	if l.FinishedAt != 0 {
		wp.FinishedAt = unixTime(l.FinishedAt)
	}
	return wp
}

func sortedByIndex(byIndex map[int]*workpkg.WorkPackage) []*workpkg.WorkPackage {
	out := make([]*workpkg.WorkPackage, 0, len(byIndex))
	for _, wp := range byIndex {
		out = append(out, wp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Close flushes and closes every open job log.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for _, f := range s.logs {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
