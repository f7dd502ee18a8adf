package queue

import "time"

// Status tracks a render task through its lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var statusSet = map[Status]struct{}{
	StatusPending:    {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// Valid reports whether the status is a known value.
func (s Status) Valid() bool {
	_, ok := statusSet[s]
	return ok
}

// Terminal reports whether the task has finished for good.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Active reports whether the task still occupies its generation's slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Task is one durable render job for a generation run.
type Task struct {
	ID            int64
	GenerationID  string
	UserID        string
	SelectedShots []string
	ModelOverride string
	Status        Status
	Attempts      int
	StallCount    int
	ErrorMessage  string
	LastHeartbeat *time.Time
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
