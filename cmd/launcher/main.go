// Command pipelinectl-launcher is the array-task entrypoint every
// submitted batch script execs into (see
// pkg/scheduler/slurmrest/launcher.sh): given a conda environment, a
// user script, and a work file, it extracts the parameter record this
// task owns and pipes it as JSON to the script's stdin.
//
// When ARRAY_TASK_ID (or Slurm's own SLURM_ARRAY_TASK_ID) is unset, the
// launcher instead fans out over every record in the work file itself,
// for local runs against scheduler/fake where no real array scheduler
// assigns one process per task.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	kio "github.com/basaltrun/slurmpipe/pkg/io"
	"github.com/basaltrun/slurmpipe/pkg/param"
)

const defaultConcurrency = 5

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pipelinectl-launcher:", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 4 {
		return fmt.Errorf("usage: pipelinectl-launcher <conda_env> <script> <work_file>")
	}
	condaEnv, script, workFile := os.Args[1], os.Args[2], os.Args[3]

	records, err := readWorkFile(workFile)
	if err != nil {
		return err
	}

	if taskID, ok := arrayTaskID(); ok {
		if taskID < 0 || taskID >= len(records) {
			return fmt.Errorf("array task id %d out of range for %d records", taskID, len(records))
		}
		return runOne(context.Background(), condaEnv, script, records[taskID], os.Stdout, os.Stderr)
	}

	return fanOut(condaEnv, script, workFile, records)
}

func readWorkFile(path string) ([]map[string]param.Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []map[string]param.Value
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode work file %s: %w", path, err)
	}
	return records, nil
}

// arrayTaskID reads the scheduler-assigned index this process should
// consume, checking the pipeline's own ARRAY_TASK_ID before Slurm's
// native SLURM_ARRAY_TASK_ID so a custom sbatch script can override it.
func arrayTaskID() (int, bool) {
	for _, name := range []string{"ARRAY_TASK_ID", "SLURM_ARRAY_TASK_ID"} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		id, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}

// runOne execs the user script under the given conda environment,
// feeding record as JSON on stdin.
func runOne(ctx context.Context, condaEnv, script string, record map[string]param.Value, stdout, stderr *os.File) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "conda", "run", "-n", condaEnv, "--no-capture-output", script)
	cmd.Stdin = strings.NewReader(string(payload))
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// fanOut emulates one array task per record for local runs, writing each
// task's stdio to <bucket>_<index>.{stdout,stderr} beside the work file
// and touching <bucket>_<index>.failed for any nonzero exit, mirroring
// what slurmrestd's own per-task stdio redirection would have produced.
func fanOut(condaEnv, script, workFile string, records []map[string]param.Value) error {
	bucket := strings.TrimSuffix(filepath.Base(workFile), ".work.json")
	dir := filepath.Dir(workFile)

	concurrency := defaultConcurrency
	if v := os.Getenv("LAUNCHER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			concurrency = n
		}
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var failed sync.Map // index -> struct{}

	for i, record := range records {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, record map[string]param.Value) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := runOneToFiles(bucket, dir, i, condaEnv, script, record); err != nil {
				failed.Store(i, struct{}{})
			}
		}(i, record)
	}
	wg.Wait()

	anyFailed := false
	failed.Range(func(_, _ any) bool { anyFailed = true; return false })
	if anyFailed {
		return fmt.Errorf("one or more tasks in %s failed", bucket)
	}
	return nil
}

func runOneToFiles(bucket, dir string, index int, condaEnv, script string, record map[string]param.Value) error {
	stdoutPath := filepath.Join(dir, fmt.Sprintf("%s_%d.stdout", bucket, index))
	stderrPath := filepath.Join(dir, fmt.Sprintf("%s_%d.stderr", bucket, index))

	stdout, err := kio.CreateAll(stdoutPath, 0o644, 0o755)
	if err != nil {
		return err
	}
	defer stdout.Close()
	stderr, err := kio.CreateAll(stderrPath, 0o644, 0o755)
	if err != nil {
		return err
	}
	defer stderr.Close()

	runErr := runOne(context.Background(), condaEnv, script, record, stdout, stderr)
	if runErr != nil {
		failedPath := filepath.Join(dir, fmt.Sprintf("%s_%d.failed", bucket, index))
		if f, ferr := kio.CreateAll(failedPath, 0o644, 0o755); ferr == nil {
			f.Close()
		}
	}
	return runErr
}
