package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func waitEvent(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %q", want)
			}
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestQueueFIFO(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	started := make(chan int64, 2)
	proc := func(ctx context.Context, report ProgressFunc) (any, error) {
		return "ok", nil
	}

	idA, err := q.Add(Spec{Label: "a", Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		started <- 1
		return proc(ctx, report)
	}})
	if err != nil {
		t.Fatalf("Add(a) error = %v", err)
	}
	idB, err := q.Add(Spec{Label: "b", Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		started <- 2
		return proc(ctx, report)
	}})
	if err != nil {
		t.Fatalf("Add(b) error = %v", err)
	}
	if idB != idA+1 {
		t.Fatalf("job ids = %d, %d, want consecutive", idA, idB)
	}

	first := waitEvent(t, events, EventJobStarted)
	if first.Job.ID != idA {
		t.Fatalf("first started job = %d, want %d", first.Job.ID, idA)
	}
	second := waitEvent(t, events, EventJobStarted)
	if second.Job.ID != idB {
		t.Fatalf("second started job = %d, want %d", second.Job.ID, idB)
	}
	if got := <-started; got != 1 {
		t.Fatalf("first processor = %d, want 1", got)
	}
	if got := <-started; got != 2 {
		t.Fatalf("second processor = %d, want 2", got)
	}
}

func TestQueueSingleConcurrency(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	var active, maxActive int32
	proc := func(ctx context.Context, report ProgressFunc) (any, error) {
		n := atomic.AddInt32(&active, 1)
		if n > atomic.LoadInt32(&maxActive) {
			atomic.StoreInt32(&maxActive, n)
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	}
	for i := 0; i < 5; i++ {
		if _, err := q.Add(Spec{Processor: proc}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	for i := 0; i < 5; i++ {
		waitEvent(t, events, EventJobCompleted)
	}
	if got := atomic.LoadInt32(&maxActive); got != 1 {
		t.Fatalf("max concurrent processors = %d, want 1", got)
	}
}

func TestQueueCancelOnlyQueued(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	release := make(chan struct{})
	blocking := func(ctx context.Context, report ProgressFunc) (any, error) {
		<-release
		return nil, nil
	}
	idA, _ := q.Add(Spec{Label: "running", Processor: blocking})
	idB, _ := q.Add(Spec{Label: "waiting", Processor: blocking})

	waitEvent(t, events, EventJobStarted)

	if err := q.Cancel(idA); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("Cancel(processing) = %v, want ErrNotCancellable", err)
	}
	if err := q.Cancel(idB); err != nil {
		t.Fatalf("Cancel(queued) error = %v", err)
	}
	evt := waitEvent(t, events, EventJobCancelled)
	if evt.Job.ID != idB || evt.Job.Status != StatusCancelled {
		t.Fatalf("cancelled event = %+v, want job %d cancelled", evt.Job, idB)
	}

	close(release)
	done := waitEvent(t, events, EventJobCompleted)
	if done.Job.ID != idA {
		t.Fatalf("completed job = %d, want %d", done.Job.ID, idA)
	}
	// The cancelled job never ran; it stays visible as terminal history.
	job, ok := q.Get(idB)
	if !ok || job.Status != StatusCancelled {
		t.Fatalf("Get(%d) = %+v, %v, want cancelled snapshot", idB, job, ok)
	}
	if job.StartedAt != nil {
		t.Fatalf("cancelled job has StartedAt set: %+v", job)
	}
}

func TestQueueCompletionSnapshot(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	id, _ := q.Add(Spec{Type: "tts", Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		report(40, "halfway")
		return map[string]any{"filename": "out.mp3"}, nil
	}})

	progress := waitEvent(t, events, EventJobProgress)
	if progress.Job.Progress != 40 || progress.Job.ProgressMessage != "halfway" {
		t.Fatalf("progress event = %+v, want 40/halfway", progress.Job)
	}

	done := waitEvent(t, events, EventJobCompleted)
	if done.Job.ID != id {
		t.Fatalf("completed job id = %d, want %d", done.Job.ID, id)
	}
	if done.Job.Progress != 100 {
		t.Fatalf("completed progress = %d, want 100", done.Job.Progress)
	}
	if done.Job.CompletedAt == nil || done.Job.StartedAt == nil {
		t.Fatalf("completed snapshot missing timestamps: %+v", done.Job)
	}
	if done.Job.Result == nil {
		t.Fatalf("completed snapshot missing result")
	}
}

func TestQueueFailureDoesNotStopQueue(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	q.Add(Spec{Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		return nil, errors.New("synthesis blew up")
	}})
	okID, _ := q.Add(Spec{Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		return nil, nil
	}})

	failed := waitEvent(t, events, EventJobFailed)
	if failed.Job.Error != "synthesis blew up" {
		t.Fatalf("failed job error = %q, want %q", failed.Job.Error, "synthesis blew up")
	}
	done := waitEvent(t, events, EventJobCompleted)
	if done.Job.ID != okID {
		t.Fatalf("completed job = %d, want %d", done.Job.ID, okID)
	}
}

func TestQueuePanicCaptured(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	q.Add(Spec{Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		panic("boom")
	}})
	failed := waitEvent(t, events, EventJobFailed)
	if failed.Job.Status != StatusFailed {
		t.Fatalf("status = %q, want %q", failed.Job.Status, StatusFailed)
	}
}

func TestQueueStatus(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	release := make(chan struct{})
	q.Add(Spec{Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		<-release
		return nil, nil
	}})
	q.Add(Spec{Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		return nil, nil
	}})

	waitEvent(t, events, EventJobStarted)
	s := q.Status()
	if !s.Processing || s.CurrentJob == nil {
		t.Fatalf("Status() = %+v, want processing with current job", s)
	}
	if s.QueueLength != 1 {
		t.Fatalf("QueueLength = %d, want 1", s.QueueLength)
	}
	jobs := q.Jobs()
	if len(jobs) != 2 || jobs[0].Status != StatusProcessing {
		t.Fatalf("Jobs() = %+v, want processing job first of 2", jobs)
	}
	close(release)
}

func TestQueueKeepsTerminalHistory(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	events, unsubscribe := q.Subscribe()
	defer unsubscribe()

	id, _ := q.Add(Spec{Processor: func(ctx context.Context, report ProgressFunc) (any, error) {
		return "done", nil
	}})
	waitEvent(t, events, EventJobCompleted)

	job, ok := q.Get(id)
	if !ok || job.Status != StatusCompleted {
		t.Fatalf("Get(%d) = %+v, %v, want completed snapshot", id, job, ok)
	}
	jobs := q.Jobs()
	if len(jobs) != 1 || jobs[0].ID != id {
		t.Fatalf("Jobs() = %+v, want the retired job listed", jobs)
	}
	if s := q.Status(); s.QueueLength != 0 || s.Processing {
		t.Fatalf("Status() = %+v, want idle queue", s)
	}
}

func TestQueueAddRequiresProcessor(t *testing.T) {
	q := New(0, zerolog.Nop())
	defer q.Close()
	if _, err := q.Add(Spec{}); !errors.Is(err, ErrNilProcessor) {
		t.Fatalf("Add(no processor) = %v, want ErrNilProcessor", err)
	}
}
