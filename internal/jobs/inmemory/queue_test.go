package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rhoekstra/pattern-engine/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.AnalyzeJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached %s (last: %+v)", jobID, want, job)
	return nil
}

func TestPublishAnalyzeDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	job := &jobs.AnalyzeJob{Administration: "acme"}
	if err := q.PublishAnalyze(context.Background(), job); err != nil {
		t.Fatalf("PublishAnalyze: %v", err)
	}

	if job.JobID == "" {
		t.Error("job ID not assigned")
	}
	if job.Mode != jobs.ModeFull {
		t.Errorf("mode = %q, want full", job.Mode)
	}
	if job.Status != jobs.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", job.MaxRetries)
	}
}

func TestPublishAnalyzeRequiresAdministration(t *testing.T) {
	q := NewQueue(10, 1, NewStore())
	defer q.Close()

	if err := q.PublishAnalyze(context.Background(), &jobs.AnalyzeJob{}); err == nil {
		t.Error("expected error for missing administration")
	}
}

func TestQueueProcessesJobToCompletion(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var handled []string
	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		handled = append(handled, job.GetID())
		mu.Unlock()
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.AnalyzeJob{Administration: "acme", Mode: jobs.ModeIncremental}
	if err := q.PublishAnalyze(ctx, job); err != nil {
		t.Fatalf("PublishAnalyze: %v", err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Errorf("timestamps not recorded: %+v", done)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0] != job.JobID {
		t.Errorf("handled = %v", handled)
	}
}

func TestQueueRetriesUntilMaxThenFails(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 1, store)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("analysis blew up")
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.AnalyzeJob{Administration: "acme", MaxRetries: 1}
	if err := q.PublishAnalyze(ctx, job); err != nil {
		t.Fatalf("PublishAnalyze: %v", err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.Error == "" {
		t.Error("failure reason not recorded")
	}
	if failed.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", failed.RetryCount)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (first run + one retry)", attempts)
	}
}

func TestClosedQueueRejectsPublish(t *testing.T) {
	q := NewQueue(10, 1, NewStore())
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	err := q.PublishAnalyze(context.Background(), &jobs.AnalyzeJob{Administration: "acme"})
	if err == nil {
		t.Error("expected error publishing to a closed queue")
	}
}
