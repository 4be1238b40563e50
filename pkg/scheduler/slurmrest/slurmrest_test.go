package slurmrest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xe "github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/scheduler"
	"github.com/basaltrun/slurmpipe/pkg/scheduler/slurmrest"
)

func TestSubmitArraySendsBearerTokenAndReturnsJobID(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-SLURM-USER-TOKEN")
		if r.URL.Path != "/slurm/v0.0.40/job/submit" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"job_id": 42})
	}))
	defer srv.Close()

	signer := slurmrest.NewTokenSigner([]byte("secret"), "pipeline", time.Minute)
	client := slurmrest.New(srv.URL, "v0.0.40", signer)

	id, err := client.SubmitArray(context.Background(), scheduler.SubmitRequest{
		Name: "job", ArraySize: 4, CPUs: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "42" {
		t.Errorf("expected job id 42, got %s", id)
	}
	if gotToken == "" {
		t.Error("expected a bearer token to be sent")
	}
}

func TestQueryTranslatesJobStates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]any{
				{"array_task_id": 0, "job_state": "COMPLETED"},
				{"array_task_id": 1, "job_state": "RUNNING"},
				{"array_task_id": 2, "job_state": "FAILED", "exit_code": map[string]int{"return_code": 1}},
			},
		})
	}))
	defer srv.Close()

	signer := slurmrest.NewTokenSigner([]byte("secret"), "pipeline", time.Minute)
	client := slurmrest.New(srv.URL, "v0.0.40", signer)

	states, err := client.Query(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if states[0].Status != scheduler.TaskSucceeded {
		t.Errorf("expected task 0 SUCCEEDED, got %s", states[0].Status)
	}
	if states[1].Status != scheduler.TaskRunning {
		t.Errorf("expected task 1 RUNNING, got %s", states[1].Status)
	}
	if states[2].Status != scheduler.TaskFailed || states[2].ExitCode != 1 {
		t.Errorf("expected task 2 FAILED with exit code 1, got %+v", states[2])
	}
}

func TestServerErrorIsClassifiedTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	signer := slurmrest.NewTokenSigner([]byte("secret"), "pipeline", time.Minute)
	client := slurmrest.New(srv.URL, "v0.0.40", signer)

	_, err := client.Query(context.Background(), "1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := xe.Classify(err); got != xe.ClassTransientQuery {
		t.Errorf("got class %s, want %s", got, xe.ClassTransientQuery)
	}
}
