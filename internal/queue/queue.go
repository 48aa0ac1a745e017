package queue

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// DefaultLimit is the number of jobs executed concurrently when no limit is
// configured.
const DefaultLimit = 3

var (
	// ErrDuplicateJob is returned when a job ID is already queued or running.
	ErrDuplicateJob = errors.New("queue: job already submitted")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("queue: closed")
)

// Executable is the unit of work the queue schedules. ctx is cancelled when
// the job is cancelled or the queue is closed; checking it is up to the
// executable.
type Executable func(ctx context.Context) error

// CancelOutcome describes what Cancel did.
type CancelOutcome int

const (
	// CancelNotFound means the job is neither queued nor running.
	CancelNotFound CancelOutcome = iota

	// CancelRemovedQueued means the job was waiting and has been removed.
	CancelRemovedQueued

	// CancelSignalledRunning means the job is running and its context was
	// cancelled. It stops at its next checkpoint.
	CancelSignalledRunning
)

func (o CancelOutcome) String() string {
	switch o {
	case CancelRemovedQueued:
		return "removed_queued"
	case CancelSignalledRunning:
		return "signalled_running"
	default:
		return "not_found"
	}
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
	Limit   int `json:"max_concurrent"`
}

// Entry is a waiting job and its 1-based position.
type Entry struct {
	JobID       string    `json:"task_id"`
	Position    int       `json:"position"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// PositionObserver is told the position of every newly queued job and the
// new position of every waiting job after the wait list changes. It runs
// outside the queue lock, one call at a time, in the order the changes
// happened. It must not call back into the Queue.
type PositionObserver func(jobID string, position int)

// Options configures a Queue.
type Options struct {
	// Limit is the maximum number of concurrently running jobs. Zero means
	// DefaultLimit.
	Limit int

	// OnPosition, if set, observes recomputed positions.
	OnPosition PositionObserver

	Logger *slog.Logger
}

type entry struct {
	jobID       string
	exec        Executable
	submittedAt time.Time
}

// Queue runs submitted jobs with at most Limit in flight and keeps the rest
// in strict FIFO order.
//
// Admission, completion and cancellation share one critical section, so the
// running count never exceeds the limit and a caller never observes a
// partially updated wait list.
type Queue struct {
	limit      int
	onPosition PositionObserver
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// notifyMu is taken before mu is released so position reports keep
	// the order of the changes that produced them.
	notifyMu sync.Mutex

	mu      sync.Mutex
	running int
	waiting *list.List
	queued  map[string]*list.Element
	active  map[string]context.CancelFunc
	closed  bool
}

// New creates a Queue.
func New(opts Options) *Queue {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		limit:      opts.Limit,
		onPosition: opts.OnPosition,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
		waiting:    list.New(),
		queued:     make(map[string]*list.Element),
		active:     make(map[string]context.CancelFunc),
	}
}

// Submit schedules exec under jobID.
//
// If fewer than Limit jobs are running the job starts immediately and the
// returned position is 0. Otherwise it is appended to the wait list and its
// 1-based position is returned.
//
// Example:
//
//	pos, err := q.Submit(job.ID, func(ctx context.Context) error {
//	    res := orch.Run(ctx, job)
//	    ...
//	})
func (q *Queue) Submit(jobID string, exec Executable) (int, error) {
	if exec == nil {
		return 0, fmt.Errorf("queue: nil executable for job %s", jobID)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0, ErrClosed
	}
	_, queued := q.queued[jobID]
	_, active := q.active[jobID]
	if queued || active {
		q.mu.Unlock()
		return 0, ErrDuplicateJob
	}

	e := &entry{jobID: jobID, exec: exec, submittedAt: time.Now()}
	if q.running < q.limit {
		q.startLocked(e)
		q.mu.Unlock()
		return 0, nil
	}

	q.queued[jobID] = q.waiting.PushBack(e)
	pos := q.waiting.Len()
	q.logger.Debug("job queued", "job_id", jobID, "position", pos)
	q.report([]Entry{{JobID: jobID, Position: pos, SubmittedAt: e.submittedAt}})
	return pos, nil
}

// Stats returns the running count, the waiting count and the limit.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Running: q.running, Queued: q.waiting.Len(), Limit: q.limit}
}

// PositionOf returns the 1-based position of a waiting job. ok is false
// when the job is running, finished or unknown.
func (q *Queue) PositionOf(jobID string) (position int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, queued := q.queued[jobID]; !queued {
		return 0, false
	}
	i := 1
	for el := q.waiting.Front(); el != nil; el = el.Next() {
		if el.Value.(*entry).jobID == jobID {
			return i, true
		}
		i++
	}
	return 0, false
}

// Entries lists the waiting jobs in dispatch order.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.entriesLocked()
}

// Running reports whether jobID is currently executing.
func (q *Queue) Running(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[jobID]
	return ok
}

// Cancel removes a waiting job or signals a running one.
func (q *Queue) Cancel(jobID string) CancelOutcome {
	q.mu.Lock()
	if el, ok := q.queued[jobID]; ok {
		q.waiting.Remove(el)
		delete(q.queued, jobID)
		q.report(q.entriesLocked())
		q.logger.Info("queued job cancelled", "job_id", jobID)
		return CancelRemovedQueued
	}
	if cancel, ok := q.active[jobID]; ok {
		cancel()
		q.mu.Unlock()
		q.logger.Info("running job signalled to cancel", "job_id", jobID)
		return CancelSignalledRunning
	}
	q.mu.Unlock()
	return CancelNotFound
}

// Close rejects further submissions, discards the wait list and cancels the
// context of every running job. It returns the IDs of discarded jobs.
// Use Wait to block until running jobs return.
func (q *Queue) Close() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	var dropped []string
	for el := q.waiting.Front(); el != nil; el = el.Next() {
		dropped = append(dropped, el.Value.(*entry).jobID)
	}
	q.waiting.Init()
	q.queued = make(map[string]*list.Element)
	q.cancel()
	return dropped
}

// Wait blocks until every dispatched job has returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// startLocked must be called with q.mu held.
func (q *Queue) startLocked(e *entry) {
	ctx, cancel := context.WithCancel(q.ctx)
	q.running++
	q.active[e.jobID] = cancel
	q.wg.Add(1)
	q.logger.Debug("job dispatched", "job_id", e.jobID, "running", q.running, "limit", q.limit)
	go q.run(ctx, e)
}

func (q *Queue) run(ctx context.Context, e *entry) {
	defer q.wg.Done()
	defer q.finish(e.jobID)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", "job_id", e.jobID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if err := e.exec(ctx); err != nil {
		q.logger.Error("job failed", "job_id", e.jobID, "error", err)
	}
}

// finish releases the job's slot, dispatches waiting jobs into the free
// capacity and reports the recomputed positions.
func (q *Queue) finish(jobID string) {
	q.mu.Lock()
	if cancel, ok := q.active[jobID]; ok {
		cancel()
		delete(q.active, jobID)
	}
	q.running--

	moved := false
	for q.running < q.limit && q.waiting.Len() > 0 {
		el := q.waiting.Front()
		e := q.waiting.Remove(el).(*entry)
		delete(q.queued, e.jobID)
		q.startLocked(e)
		moved = true
	}

	if !moved {
		q.mu.Unlock()
		return
	}
	q.report(q.entriesLocked())
}

func (q *Queue) entriesLocked() []Entry {
	out := make([]Entry, 0, q.waiting.Len())
	i := 1
	for el := q.waiting.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		out = append(out, Entry{JobID: e.jobID, Position: i, SubmittedAt: e.submittedAt})
		i++
	}
	return out
}

// report releases mu and hands entries to the observer. Must be called
// with mu held.
func (q *Queue) report(entries []Entry) {
	if q.onPosition == nil || len(entries) == 0 {
		q.mu.Unlock()
		return
	}
	q.notifyMu.Lock()
	q.mu.Unlock()
	defer q.notifyMu.Unlock()
	for _, e := range entries {
		q.onPosition(e.JobID, e.Position)
	}
}
