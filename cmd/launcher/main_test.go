package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/basaltrun/slurmpipe/pkg/param"
)

func writeWorkFile(t *testing.T, dir string, records []map[string]param.Value) string {
	t.Helper()
	path := filepath.Join(dir, "convert.work.json")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(records); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadWorkFileRoundTripsParamValues(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkFile(t, dir, []map[string]param.Value{
		{"x": param.Number(1)},
		{"x": param.Number(2)},
	})

	records, err := readWorkFile(path)
	if err != nil {
		t.Fatalf("readWorkFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	n, ok := records[1]["x"].AsNumber()
	if !ok || n != 2 {
		t.Fatalf("expected records[1].x == 2, got %v ok=%v", n, ok)
	}
}

func TestArrayTaskIDPrefersPipelineOwnVar(t *testing.T) {
	t.Setenv("ARRAY_TASK_ID", "3")
	t.Setenv("SLURM_ARRAY_TASK_ID", "7")

	id, ok := arrayTaskID()
	if !ok || id != 3 {
		t.Fatalf("expected (3, true), got (%d, %v)", id, ok)
	}
}

func TestArrayTaskIDFallsBackToSlurmVar(t *testing.T) {
	os.Unsetenv("ARRAY_TASK_ID")
	t.Setenv("SLURM_ARRAY_TASK_ID", "5")

	id, ok := arrayTaskID()
	if !ok || id != 5 {
		t.Fatalf("expected (5, true), got (%d, %v)", id, ok)
	}
}

func TestArrayTaskIDUnsetWhenNeitherVarPresent(t *testing.T) {
	os.Unsetenv("ARRAY_TASK_ID")
	os.Unsetenv("SLURM_ARRAY_TASK_ID")

	if _, ok := arrayTaskID(); ok {
		t.Fatal("expected no array task id")
	}
}

func TestRunOneToFilesMarksFailedFileWhenLaunchFails(t *testing.T) {
	dir := t.TempDir()
	workFile := writeWorkFile(t, dir, []map[string]param.Value{{"x": param.Number(1)}})

	// "conda" is not guaranteed to exist in the test environment, but
	// runOneToFiles must still produce a .failed marker for a command
	// that cannot even start, matching the same observable behavior as
	// a script that exits nonzero.
	err := runOneToFiles("convert", dir, 0, "nonexistent-env", "/bin/does-not-exist", map[string]param.Value{"x": param.Number(1)})
	if err == nil {
		t.Fatal("expected an error launching an unrunnable script")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "convert_0.failed")); statErr != nil {
		t.Fatalf("expected failed marker: %v", statErr)
	}
	_ = workFile
}
