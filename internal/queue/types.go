package queue

import (
	"context"
	"time"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

type EventType string

const (
	EventJobAdded     EventType = "job-added"
	EventJobStarted   EventType = "job-started"
	EventJobProgress  EventType = "job-progress"
	EventJobCompleted EventType = "job-completed"
	EventJobFailed    EventType = "job-failed"
	EventJobCancelled EventType = "job-cancelled"
)

// Processor runs one queued unit of work. It reports incremental progress
// through report and returns the job result or a terminal error.
type Processor func(ctx context.Context, report ProgressFunc) (any, error)

// ProgressFunc records progress (0-100) and a short human-readable message.
type ProgressFunc func(progress int, message string)

// Job is one unit of asynchronous work owned by the queue. Snapshots of it
// travel in events; the queue holds the only live copy.
type Job struct {
	ID              int64      `json:"id"`
	Type            string     `json:"type,omitempty"`
	Label           string     `json:"label,omitempty"`
	Voice           string     `json:"voice,omitempty"`
	Status          Status     `json:"status"`
	Progress        int        `json:"progress"`
	ProgressMessage string     `json:"progressMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	Error           string     `json:"error,omitempty"`
	Result          any        `json:"result,omitempty"`

	processor Processor
}

func (j Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Spec describes a job at admission time.
type Spec struct {
	Type      string
	Label     string
	Voice     string
	Processor Processor
}

// Event is a queue lifecycle notification carrying a full job snapshot.
type Event struct {
	Type EventType `json:"type"`
	Job  Job       `json:"job"`
	At   time.Time `json:"at"`
}

// StatusSnapshot summarizes the queue for observers.
type StatusSnapshot struct {
	QueueLength int  `json:"queueLength"`
	Processing  bool `json:"processing"`
	CurrentJob  *Job `json:"currentJob"`
}
