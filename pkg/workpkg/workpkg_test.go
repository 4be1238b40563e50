package workpkg_test

import (
	"testing"
	"time"

	"github.com/basaltrun/slurmpipe/pkg/workpkg"
)

func TestMarkFailedAttemptRetriesUntilExhausted(t *testing.T) {
	wp := workpkg.New(workpkg.Key{JobName: "job", Index: 0}, nil, workpkg.Resources{CPUs: 1})
	wp.MarkSubmitted(workpkg.ExternalID{ArrayJobID: "1", TaskID: 0}, time.Now())

	wp.MarkFailedAttempt(1, "boom", 2, time.Now())
	if wp.State != workpkg.Retryable {
		t.Fatalf("expected RETRYABLE after attempt 1 of 2, got %s", wp.State)
	}

	wp.MarkSubmitted(workpkg.ExternalID{ArrayJobID: "2", TaskID: 0}, time.Now())
	wp.MarkFailedAttempt(1, "boom again", 2, time.Now())
	if wp.State != workpkg.Retryable {
		t.Fatalf("expected RETRYABLE after attempt 2 of 2, got %s", wp.State)
	}

	wp.MarkSubmitted(workpkg.ExternalID{ArrayJobID: "3", TaskID: 0}, time.Now())
	wp.MarkFailedAttempt(1, "final", 2, time.Now())
	if wp.State != workpkg.Failed {
		t.Fatalf("expected terminal FAILED after exhausting retries, got %s", wp.State)
	}
	if wp.Attempt != 3 {
		t.Errorf("expected attempt=3, got %d", wp.Attempt)
	}
}

func TestMaxRetriesZeroMeansSingleAttempt(t *testing.T) {
	wp := workpkg.New(workpkg.Key{JobName: "job", Index: 0}, nil, workpkg.Resources{CPUs: 1})
	wp.MarkSubmitted(workpkg.ExternalID{ArrayJobID: "1", TaskID: 0}, time.Now())

	wp.MarkFailedAttempt(1, "boom", 0, time.Now())
	if wp.State != workpkg.Failed {
		t.Fatalf("expected immediate terminal FAILED with max_retries=0, got %s", wp.State)
	}
}

func TestTerminalStatesAreNeverReentered(t *testing.T) {
	wp := workpkg.New(workpkg.Key{JobName: "job", Index: 0}, nil, workpkg.Resources{CPUs: 1})
	wp.MarkSubmitted(workpkg.ExternalID{ArrayJobID: "1", TaskID: 0}, time.Now())
	wp.MarkSucceeded(time.Now())

	wp.MarkRunning()
	if wp.State != workpkg.Succeeded {
		t.Errorf("expected SUCCEEDED to be sticky, got %s", wp.State)
	}

	wp.MarkCancelled(time.Now())
	if wp.State != workpkg.Succeeded {
		t.Errorf("terminal state must not be overwritten by cancel, got %s", wp.State)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := workpkg.New(workpkg.Key{JobName: "job", Index: 0}, nil, workpkg.Resources{CPUs: 1})
	clone := orig.Clone()
	clone.State = workpkg.Succeeded

	if orig.State == workpkg.Succeeded {
		t.Error("mutating the clone must not affect the original")
	}
}
