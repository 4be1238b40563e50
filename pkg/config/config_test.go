package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/basaltrun/slurmpipe/pkg/config"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func minimalConfig(t *testing.T, dir string) string {
	t.Helper()
	script := writeFixture(t, dir, "run.sh", "#!/bin/sh\n")
	paramFile := writeFixture(t, dir, "params.yaml", "- {x: 1}\n")

	return writeFixture(t, dir, "pipeline.yaml", `
jobs:
  - name: only-job
    script: `+script+`
    param_files:
      - `+paramFile+`
    log_dir: `+dir+`
    resources:
      cpus: 2
      time: "01:00:00"
properties:
  conda_env: /opt/conda/envs/foo
  max_retries: 2
  poll_interval: 5
  exp_backoff_factor: 2
`)
}

func TestLoadValidPipeline(t *testing.T) {
	dir := t.TempDir()
	path := minimalConfig(t, dir)

	pipeline, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pipeline.Jobs()) != 1 {
		t.Fatalf("expected 1 job, got %d", len(pipeline.Jobs()))
	}
	job := pipeline.Jobs()[0]
	if job.Name() != "only-job" {
		t.Errorf("unexpected job name: %s", job.Name())
	}
	if job.Resources().CPUs != 2 {
		t.Errorf("expected 2 cpus, got %d", job.Resources().CPUs)
	}
	if pipeline.Properties().FailurePolicy() != config.FailurePolicyContinue {
		t.Errorf("expected default failure policy continue, got %s", pipeline.Properties().FailurePolicy())
	}
}

func TestLoadRejectsDuplicateJobNames(t *testing.T) {
	dir := t.TempDir()
	script := writeFixture(t, dir, "run.sh", "#!/bin/sh\n")
	paramFile := writeFixture(t, dir, "params.yaml", "- {x: 1}\n")

	path := writeFixture(t, dir, "pipeline.yaml", `
jobs:
  - name: dup
    script: `+script+`
    param_files: [`+paramFile+`]
    log_dir: `+dir+`
    resources: {cpus: 1, time: "00:10:00"}
  - name: dup
    script: `+script+`
    param_files: [`+paramFile+`]
    log_dir: `+dir+`
    resources: {cpus: 1, time: "00:10:00"}
properties:
  conda_env: /opt/conda/envs/foo
  max_retries: 0
  poll_interval: 1
  exp_backoff_factor: 1
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for duplicate job names")
	}
}

func TestLoadRejectsMissingScript(t *testing.T) {
	dir := t.TempDir()
	paramFile := writeFixture(t, dir, "params.yaml", "- {x: 1}\n")

	path := writeFixture(t, dir, "pipeline.yaml", `
jobs:
  - name: job
    script: `+filepath.Join(dir, "does-not-exist.sh")+`
    param_files: [`+paramFile+`]
    log_dir: `+dir+`
    resources: {cpus: 1, time: "00:10:00"}
properties:
  conda_env: /opt/conda/envs/foo
  max_retries: 0
  poll_interval: 1
  exp_backoff_factor: 1
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for a missing script path")
	}
}

func TestLoadRejectsUnknownProperty(t *testing.T) {
	dir := t.TempDir()
	script := writeFixture(t, dir, "run.sh", "#!/bin/sh\n")
	paramFile := writeFixture(t, dir, "params.yaml", "- {x: 1}\n")

	path := writeFixture(t, dir, "pipeline.yaml", `
jobs:
  - name: job
    script: `+script+`
    param_files: [`+paramFile+`]
    log_dir: `+dir+`
    resources: {cpus: 1, time: "00:10:00"}
properties:
  conda_env: /opt/conda/envs/foo
  max_retries: 0
  pool_interval: 1
  exp_backoff_factor: 1
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for an unknown property key (pool_interval typo)")
	}
}

func TestLoadRejectsMalformedTime(t *testing.T) {
	dir := t.TempDir()
	script := writeFixture(t, dir, "run.sh", "#!/bin/sh\n")
	paramFile := writeFixture(t, dir, "params.yaml", "- {x: 1}\n")

	path := writeFixture(t, dir, "pipeline.yaml", `
jobs:
  - name: job
    script: `+script+`
    param_files: [`+paramFile+`]
    log_dir: `+dir+`
    resources: {cpus: 1, time: "1 hour"}
properties:
  conda_env: /opt/conda/envs/foo
  max_retries: 0
  poll_interval: 1
  exp_backoff_factor: 1
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected an error for a malformed resources.time")
	}
}
