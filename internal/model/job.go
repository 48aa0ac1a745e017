package model

import (
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusRunning:   true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusRetrying:  true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusRetrying: {
		StatusRunning:   true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Mode selects what a fetch produces.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// ParseMode maps user input to a Mode. Anything that is not "audio" is video.
func ParseMode(raw string) Mode {
	if strings.EqualFold(strings.TrimSpace(raw), string(ModeAudio)) {
		return ModeAudio
	}
	return ModeVideo
}

// Params describes what to fetch.
type Params struct {
	// Target is the media URL, already cleaned by CleanURL.
	Target string `json:"url"`

	// Quality is the requested starting tier.
	Quality Tier `json:"format"`

	// Mode selects video or audio-only output.
	Mode Mode `json:"mode"`
}

// Job is a single requested fetch-and-store unit of work.
//
// A Job is shared between the queue, the orchestrator and readers such as
// the HTTP API, so all mutable fields are guarded by an internal lock.
// Use Snapshot to obtain a consistent copy for serialization.
//
// Example:
//
//	job := model.NewJob(model.Params{Target: url, Quality: model.TierBest})
//	if err := job.Transition(model.StatusRunning); err != nil {
//	    return err
//	}
//	snap := job.Snapshot()
type Job struct {
	ID        string
	Params    Params
	CreatedAt time.Time

	mu          sync.RWMutex
	status      Status
	progress    float64
	title       string
	output      string
	metadata    map[string]string
	lastError   string
	updatedAt   time.Time
	completedAt time.Time
}

// JobSnapshot is an immutable view of a Job.
type JobSnapshot struct {
	ID          string            `json:"task_id"`
	Target      string            `json:"url"`
	Quality     Tier              `json:"format"`
	Mode        Mode              `json:"mode"`
	Status      Status            `json:"status"`
	Progress    float64           `json:"progress"`
	Title       string            `json:"title,omitempty"`
	Output      string            `json:"output,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt time.Time         `json:"completed_at,omitempty"`
}

// NewJob creates a queued Job with a fresh short ID.
func NewJob(params Params) *Job {
	now := time.Now().UTC()
	if params.Quality == "" {
		params.Quality = TierBest
	}
	if params.Mode == "" {
		params.Mode = ModeVideo
	}
	return &Job{
		ID:        NewJobID(),
		Params:    params,
		CreatedAt: now,
		status:    StatusQueued,
		updatedAt: now,
	}
}

// NewJobID returns the first 8 hex characters of a random UUID.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Status returns the current status.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Transition moves the job to a new status if the transition table allows it.
func (j *Job) Transition(to Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !CanTransition(j.status, to) {
		return fmt.Errorf("invalid job status transition: %q -> %q (job_id=%s)", j.status, to, j.ID)
	}
	j.status = to
	j.updatedAt = time.Now().UTC()
	if to.IsTerminal() {
		j.completedAt = j.updatedAt
	}
	if to == StatusCompleted {
		j.progress = 100
	}
	return nil
}

// SetProgress records the latest download percentage, clamped to [0, 100].
func (j *Job) SetProgress(percent float64) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	j.mu.Lock()
	j.progress = percent
	j.updatedAt = time.Now().UTC()
	j.mu.Unlock()
}

// SetResult stores the output locator, title and extractor metadata of a
// completed fetch.
func (j *Job) SetResult(output, title string, metadata map[string]string) {
	j.mu.Lock()
	j.output = output
	j.title = title
	j.metadata = metadata
	j.mu.Unlock()
}

// SetQuality records the tier the job is currently fetched at. Readers see
// it through Snapshot.
func (j *Job) SetQuality(t Tier) {
	j.mu.Lock()
	j.Params.Quality = t
	j.mu.Unlock()
}

// SetError stores the last human-readable failure message.
func (j *Job) SetError(msg string) {
	j.mu.Lock()
	j.lastError = msg
	j.mu.Unlock()
}

// Snapshot returns a consistent copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return JobSnapshot{
		ID:          j.ID,
		Target:      j.Params.Target,
		Quality:     j.Params.Quality,
		Mode:        j.Params.Mode,
		Status:      j.status,
		Progress:    j.progress,
		Title:       j.title,
		Output:      j.output,
		Metadata:    maps.Clone(j.metadata),
		Error:       j.lastError,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.updatedAt,
		CompletedAt: j.completedAt,
	}
}
