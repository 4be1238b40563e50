// Package fake is the in-memory scheduler.Adapter implementation spec.md
// §9 asks for: a caller-controlled state map with no real cluster
// dependency, used by tests and by the CLI's start/retry commands when no
// --scheduler-url is given.
package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/basaltrun/slurmpipe/pkg/scheduler"
)

type job struct {
	req   scheduler.SubmitRequest
	tasks map[int]scheduler.TaskState
}

// Scheduler is a thread-safe, deterministic scheduler.Adapter double.
// Test code drives task-state transitions directly via SetTaskState;
// nothing here starts real processes.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[scheduler.ArrayJobID]*job
	counter int
}

func New() *Scheduler {
	return &Scheduler{jobs: map[scheduler.ArrayJobID]*job{}}
}

func (s *Scheduler) SubmitArray(_ context.Context, req scheduler.SubmitRequest) (scheduler.ArrayJobID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id := scheduler.ArrayJobID(fmt.Sprintf("fake-%d", s.counter))

	tasks := make(map[int]scheduler.TaskState, req.ArraySize)
	for i := 0; i < req.ArraySize; i++ {
		tasks[i] = scheduler.TaskState{Status: scheduler.TaskPending}
	}
	s.jobs[id] = &job{req: req, tasks: tasks}
	return id, nil
}

func (s *Scheduler) Query(_ context.Context, id scheduler.ArrayJobID) (map[int]scheduler.TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("fake scheduler: unknown array job %s", id)
	}
	out := make(map[int]scheduler.TaskState, len(j.tasks))
	for k, v := range j.tasks {
		out[k] = v
	}
	return out, nil
}

func (s *Scheduler) Cancel(_ context.Context, id scheduler.ArrayJobID, taskIDs ...int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("fake scheduler: unknown array job %s", id)
	}
	if len(taskIDs) == 0 {
		for i := range j.tasks {
			taskIDs = append(taskIDs, i)
		}
	}
	for _, i := range taskIDs {
		if st, ok := j.tasks[i]; ok && st.Status != scheduler.TaskSucceeded && st.Status != scheduler.TaskFailed {
			j.tasks[i] = scheduler.TaskState{Status: scheduler.TaskFailed, ExitCode: -1}
		}
	}
	return nil
}

func (s *Scheduler) ListActive(_ context.Context, account, namePrefix string) ([]scheduler.ArrayJobID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []scheduler.ArrayJobID
	for id, j := range s.jobs {
		if account != "" && j.req.Account != account {
			continue
		}
		if namePrefix != "" && !strings.HasPrefix(j.req.Name, namePrefix) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SetTaskState lets test code drive a task's observed state directly,
// simulating what a real scheduler's query endpoint would eventually
// report.
func (s *Scheduler) SetTaskState(id scheduler.ArrayJobID, taskID int, state scheduler.TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[id]; ok {
		j.tasks[taskID] = state
	}
}
