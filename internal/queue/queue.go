package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNilProcessor = errors.New("job processor is required")

	// ErrNotCancellable is returned for unknown jobs and for jobs that have
	// already left the queued state. A processing job runs to completion.
	ErrNotCancellable = errors.New("job not found or not cancellable")
)

// DefaultInterJobDelay spaces consecutive jobs so a burst of short jobs does
// not hammer the synthesis backend.
const DefaultInterJobDelay = 500 * time.Millisecond

// maxHistory bounds how many terminal jobs stay visible to Get and Jobs
// after leaving the active queue.
const maxHistory = 50

// Queue admits jobs in FIFO order and executes them one at a time. Lifecycle
// transitions are published to subscribers as events carrying job snapshots.
type Queue struct {
	mu sync.Mutex

	pending    []*Job
	current    *Job
	history    []*Job
	nextID     int64
	processing bool

	interJobDelay time.Duration

	subscribers map[int]chan Event
	nextSubID   int

	ctx    context.Context
	cancel context.CancelFunc

	log zerolog.Logger
}

func New(interJobDelay time.Duration, log zerolog.Logger) *Queue {
	if interJobDelay < 0 {
		interJobDelay = DefaultInterJobDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		interJobDelay: interJobDelay,
		subscribers:   make(map[int]chan Event),
		ctx:           ctx,
		cancel:        cancel,
		log:           log,
	}
}

// Close cancels the context handed to running processors. Pending jobs are
// left in place; the worker drains them with a cancelled context.
func (q *Queue) Close() {
	q.cancel()
}

// Subscribe registers an observer for queue events. The returned func
// unregisters it and closes the channel. Slow subscribers lose events rather
// than stalling the queue.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 256)
	q.mu.Lock()
	q.nextSubID++
	id := q.nextSubID
	q.subscribers[id] = ch
	q.mu.Unlock()

	return ch, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if c, ok := q.subscribers[id]; ok {
			delete(q.subscribers, id)
			close(c)
		}
	}
}

// Add admits a job and returns its id immediately. The worker is started if
// nothing is processing.
func (q *Queue) Add(spec Spec) (int64, error) {
	if spec.Processor == nil {
		return 0, ErrNilProcessor
	}
	now := time.Now().UTC()

	q.mu.Lock()
	q.nextID++
	job := &Job{
		ID:        q.nextID,
		Type:      spec.Type,
		Label:     spec.Label,
		Voice:     spec.Voice,
		Status:    StatusQueued,
		CreatedAt: now,
		processor: spec.Processor,
	}
	q.pending = append(q.pending, job)
	q.publishLocked(EventJobAdded, job.snapshot())
	start := !q.processing
	if start {
		q.processing = true
	}
	q.mu.Unlock()

	q.log.Info().Int64("job_id", job.ID).Str("label", spec.Label).Msg("job added to queue")
	if start {
		go q.run()
	}
	return job.ID, nil
}

// Cancel removes a still-queued job. Jobs that are processing or already
// terminal cannot be cancelled.
func (q *Queue) Cancel(id int64) error {
	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, job := range q.pending {
		if job.ID != id {
			continue
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		job.Status = StatusCancelled
		job.CompletedAt = &now
		q.retireLocked(job)
		q.publishLocked(EventJobCancelled, job.snapshot())
		q.log.Info().Int64("job_id", id).Msg("job cancelled")
		return nil
	}
	return ErrNotCancellable
}

// UpdateProgress records progress for the currently processing job and emits
// a progress event. Updates for any other job are ignored.
func (q *Queue) UpdateProgress(id int64, progress int, message string) {
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	job := q.current
	if job == nil || job.ID != id || job.Terminal() {
		return
	}
	job.Progress = progress
	job.ProgressMessage = message
	q.publishLocked(EventJobProgress, job.snapshot())
}

// Get returns a snapshot of the processing or queued job with the given id.
func (q *Queue) Get(id int64) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil && q.current.ID == id {
		return q.current.snapshot(), true
	}
	for _, job := range q.pending {
		if job.ID == id {
			return job.snapshot(), true
		}
	}
	for i := len(q.history) - 1; i >= 0; i-- {
		if q.history[i].ID == id {
			return q.history[i].snapshot(), true
		}
	}
	return Job{}, false
}

// Jobs returns snapshots of all live jobs (the processing one first) followed
// by recent terminal jobs, newest first.
func (q *Queue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.pending)+len(q.history)+1)
	if q.current != nil {
		out = append(out, q.current.snapshot())
	}
	for _, job := range q.pending {
		out = append(out, job.snapshot())
	}
	for i := len(q.history) - 1; i >= 0; i-- {
		out = append(out, q.history[i].snapshot())
	}
	return out
}

// Status summarizes the queue for observers.
func (q *Queue) Status() StatusSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := StatusSnapshot{
		QueueLength: len(q.pending),
		Processing:  q.processing,
	}
	if q.current != nil {
		snap := q.current.snapshot()
		s.CurrentJob = &snap
	}
	return s
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.processing = false
			q.current = nil
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending = q.pending[1:]
		now := time.Now().UTC()
		job.Status = StatusProcessing
		job.StartedAt = &now
		q.current = job
		q.publishLocked(EventJobStarted, job.snapshot())
		proc := job.processor
		id := job.ID
		q.mu.Unlock()

		q.log.Info().Int64("job_id", id).Msg("processing job")

		result, err := q.runProcessor(proc, id)

		done := time.Now().UTC()
		q.mu.Lock()
		if err != nil {
			job.Status = StatusFailed
			job.Error = err.Error()
			job.CompletedAt = &done
			q.publishLocked(EventJobFailed, job.snapshot())
		} else {
			job.Status = StatusCompleted
			job.Progress = 100
			job.Result = result
			job.CompletedAt = &done
			q.publishLocked(EventJobCompleted, job.snapshot())
		}
		q.retireLocked(job)
		q.current = nil
		idle := len(q.pending) == 0
		if idle {
			// Flip to idle inside the same critical section as the terminal
			// transition so observers never see a drained queue still
			// "processing". A concurrent Add now starts a fresh worker.
			q.processing = false
		}
		q.mu.Unlock()

		if err != nil {
			q.log.Error().Int64("job_id", id).Err(err).Msg("job failed")
		} else {
			q.log.Info().Int64("job_id", id).Msg("job completed")
		}

		if idle {
			return
		}
		if q.interJobDelay > 0 {
			time.Sleep(q.interJobDelay)
		}
	}
}

// runProcessor isolates the unit of work: its error (or panic) is captured
// into the job record and never reaches the queue's own control flow.
func (q *Queue) runProcessor(proc Processor, id int64) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	report := func(progress int, message string) {
		q.UpdateProgress(id, progress, message)
	}
	return proc(q.ctx, report)
}

func (q *Queue) retireLocked(job *Job) {
	q.history = append(q.history, job)
	if len(q.history) > maxHistory {
		q.history = q.history[len(q.history)-maxHistory:]
	}
}

func (q *Queue) publishLocked(typ EventType, snap Job) {
	evt := Event{Type: typ, Job: snap, At: time.Now().UTC()}
	for _, ch := range q.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (j *Job) snapshot() Job {
	c := *j
	c.processor = nil
	return c
}
