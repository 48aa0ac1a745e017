package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jeffrey0117/Ytify/internal/classify"
	"github.com/Jeffrey0117/Ytify/internal/model"
)

// DefaultBuffer is the number of events the notifier holds before it starts
// dropping.
const DefaultBuffer = 256

// ErrSubscriberClosed is returned by a Subscriber that can no longer accept
// events. The notifier removes it.
var ErrSubscriberClosed = errors.New("notify: subscriber closed")

// Event is a single status update for a job.
type Event struct {
	JobID    string       `json:"task_id"`
	Status   model.Status `json:"status"`
	Progress float64      `json:"progress"`
	Speed    string       `json:"speed,omitempty"`
	ETA      string       `json:"eta,omitempty"`
	Message  string       `json:"message,omitempty"`
	Title    string       `json:"title,omitempty"`
	Output   string       `json:"output,omitempty"`

	// Attempt is the 1-based attempt number for running and retrying
	// events.
	Attempt int `json:"attempt,omitempty"`

	// Position is the queue position for queued events.
	Position int `json:"position,omitempty"`

	Failure   *classify.Failure `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Terminal reports whether the event carries a terminal status.
func (e Event) Terminal() bool {
	return e.Status.IsTerminal()
}

// Subscriber receives events. Send must not block for long; a returned
// error unsubscribes it.
type Subscriber interface {
	Send(Event) error
}

// Handle identifies a subscription.
type Handle struct {
	id    uint64
	jobID string
}

// JobID returns the job the subscription is scoped to, empty for global
// subscriptions.
func (h Handle) JobID() string { return h.jobID }

// Notifier fans events out to per-job and global subscribers.
//
// Publish never blocks: events go into a bounded buffer drained by a single
// dispatch loop started with Run, and the oldest are dropped when the
// buffer is full.
type Notifier struct {
	events  chan Event
	logger  *slog.Logger
	dropped atomic.Uint64

	mu     sync.Mutex
	nextID uint64
	byJob  map[string]map[uint64]Subscriber
	global map[uint64]Subscriber
}

// New creates a Notifier with the given buffer size (DefaultBuffer when not
// positive).
func New(buffer int, logger *slog.Logger) *Notifier {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		events: make(chan Event, buffer),
		logger: logger,
		byJob:  make(map[string]map[uint64]Subscriber),
		global: make(map[uint64]Subscriber),
	}
}

// Publish queues ev for delivery to subscribers of jobID and to global
// subscribers. It never blocks: when the buffer is full the oldest
// buffered event is discarded to make room, and if the buffer is still
// full ev itself is dropped. Subscribers therefore see the most recent
// events, in order and without duplicates.
func (n *Notifier) Publish(jobID string, ev Event) {
	ev.JobID = jobID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case n.events <- ev:
		return
	default:
	}

	select {
	case <-n.events:
		n.dropped.Add(1)
	default:
	}

	select {
	case n.events <- ev:
	default:
		n.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded because the buffer was
// full.
func (n *Notifier) Dropped() uint64 {
	return n.dropped.Load()
}

// Subscribe registers sub for events of jobID, or for all jobs when jobID is
// empty.
func (n *Notifier) Subscribe(jobID string, sub Subscriber) Handle {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	h := Handle{id: n.nextID, jobID: jobID}
	if jobID == "" {
		n.global[h.id] = sub
		return h
	}
	set, ok := n.byJob[jobID]
	if !ok {
		set = make(map[uint64]Subscriber)
		n.byJob[jobID] = set
	}
	set[h.id] = sub
	return h
}

// Unsubscribe removes a subscription. Unknown handles are ignored.
func (n *Notifier) Unsubscribe(h Handle) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.remove(h)
}

// Subscribers returns the number of subscribers for jobID plus the global
// ones.
func (n *Notifier) Subscribers(jobID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.byJob[jobID]) + len(n.global)
}

// Run is the dispatch loop. It delivers events until ctx is done, then
// flushes what is still buffered and returns.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n.flush()
			return nil
		case ev := <-n.events:
			n.dispatch(ev)
		}
	}
}

func (n *Notifier) flush() {
	for {
		select {
		case ev := <-n.events:
			n.dispatch(ev)
		default:
			return
		}
	}
}

func (n *Notifier) dispatch(ev Event) {
	type target struct {
		h   Handle
		sub Subscriber
	}

	n.mu.Lock()
	targets := make([]target, 0, len(n.byJob[ev.JobID])+len(n.global))
	for id, sub := range n.byJob[ev.JobID] {
		targets = append(targets, target{Handle{id: id, jobID: ev.JobID}, sub})
	}
	for id, sub := range n.global {
		targets = append(targets, target{Handle{id: id}, sub})
	}
	n.mu.Unlock()

	for _, t := range targets {
		if err := t.sub.Send(ev); err != nil {
			n.logger.Debug("removing subscriber", "job_id", t.h.jobID, "error", err)
			n.Unsubscribe(t.h)
		}
	}
}

func (n *Notifier) remove(h Handle) {
	if h.jobID == "" {
		delete(n.global, h.id)
		return
	}
	set := n.byJob[h.jobID]
	delete(set, h.id)
	if len(set) == 0 {
		delete(n.byJob, h.jobID)
	}
}
