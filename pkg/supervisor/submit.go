package supervisor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/basaltrun/slurmpipe/pkg/config"
	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/scheduler"
	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

// logPaths derives the per-task stdout/stderr file locations from the
// job's log directory and the assigned array job id, matching spec.md
// §6's `<array_job_id>_<task_id>.{stdout,stderr}` convention.
func logPaths(job *config.Job, id scheduler.ArrayJobID, taskID int) workpkg.LogPaths {
	return workpkg.LogPaths{
		Stdout: filepath.Join(job.LogDir(), fmt.Sprintf("%s_%d.stdout", id, taskID)),
		Stderr: filepath.Join(job.LogDir(), fmt.Sprintf("%s_%d.stderr", id, taskID)),
	}
}

// buildSubmitRequest turns a bucket's resource allocation and materialized
// work file into a scheduler.SubmitRequest.
func (s *Supervisor) buildSubmitRequest(job *config.Job, bucketName string, resources scheduler.SubmitRequest, workFile string, arraySize int) scheduler.SubmitRequest {
	req := resources
	req.Account = s.Pipeline.Properties().Account()
	req.Name = bucketName
	req.CondaEnv = s.Pipeline.Properties().CondaEnv()
	req.Script = job.Script()
	req.WorkFile = workFile
	req.ArraySize = arraySize
	req.Stdio = scheduler.StdioTemplate{
		Stdout: filepath.Join(job.LogDir(), "{array_job_id}_{task_id}.stdout"),
		Stderr: filepath.Join(job.LogDir(), "{array_job_id}_{task_id}.stderr"),
	}
	return req
}

// submitWithRetry retries a rejected submission up to SubmissionRetries
// times with a fixed SubmissionDelay (SubmissionRetries+1 attempts in all),
// per spec.md §7. Unlike runAsync, the first attempt fires immediately;
// only retries are delayed.
func (s *Supervisor) submitWithRetry(ctx context.Context, req scheduler.SubmitRequest) (scheduler.ArrayJobID, error) {
	delay := staticBackoff(s.SubmissionDelay)

	var lastErr error
	for attempt := 0; attempt <= s.SubmissionRetries; attempt++ {
		id, err := s.Adapter.SubmitArray(ctx, req)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if attempt == s.SubmissionRetries {
			break
		}
		if werr := delay(ctx); werr != nil {
			return "", werr
		}
	}
	return "", errors.WithClass(errors.ClassSubmission, errors.Wrap(lastErr))
}
