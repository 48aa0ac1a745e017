package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Jeffrey0117/Ytify/internal/download"
	"github.com/Jeffrey0117/Ytify/internal/egress"
	"github.com/Jeffrey0117/Ytify/internal/model"
	"github.com/Jeffrey0117/Ytify/internal/notify"
	"github.com/Jeffrey0117/Ytify/internal/queue"
)

// Version is reported by the health endpoint and the CLI.
const Version = "1.0.0"

// DefaultMaxJobs bounds how many jobs are kept in memory. Finished jobs
// beyond it are forgotten oldest first; queued and running jobs never are.
const DefaultMaxJobs = 1000

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("service: job not found")

	// ErrInvalidTarget is returned when the submitted URL is not http(s).
	ErrInvalidTarget = errors.New("service: target must be an http(s) URL")
)

// Options wires a Service.
type Options struct {
	Fetcher download.Fetcher

	// Pool is optional; without it every attempt connects directly.
	Pool *egress.Pool

	// Recorder is optional.
	Recorder download.Recorder

	// Notifier is created with notify.DefaultBuffer when nil.
	Notifier *notify.Notifier

	// Limit is the number of concurrent downloads.
	Limit int

	MaxJobs int
	Logger  *slog.Logger

	// Sleep overrides the retry backoff wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Service owns the download queue and everything a submitted job flows
// through: the orchestrator, the egress pool, the notifier and the
// recorder.
//
// Example:
//
//	svc := service.New(service.Options{Fetcher: fetcher, Pool: pool, Recorder: store})
//	go svc.Run(ctx)
//	job, pos, err := svc.Submit(model.Params{Target: url, Quality: model.Tier720p})
type Service struct {
	queue    *queue.Queue
	orch     *download.Orchestrator
	notifier *notify.Notifier
	pool     *egress.Pool
	recorder download.Recorder
	maxJobs  int
	logger   *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// New creates a Service. Call Run to start event dispatch.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.New(notify.DefaultBuffer, logger)
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = DefaultMaxJobs
	}

	s := &Service{
		notifier: notifier,
		pool:     opts.Pool,
		recorder: opts.Recorder,
		maxJobs:  opts.MaxJobs,
		logger:   logger,
		jobs:     make(map[string]*model.Job),
	}

	orchOpts := download.Options{
		Fetcher:   opts.Fetcher,
		Publisher: notifier,
		Recorder:  opts.Recorder,
		Logger:    logger,
		Sleep:     opts.Sleep,
	}
	if opts.Pool != nil {
		orchOpts.Egress = opts.Pool
	}
	s.orch = download.NewOrchestrator(orchOpts)

	s.queue = queue.New(queue.Options{
		Limit:      opts.Limit,
		OnPosition: s.publishPosition,
		Logger:     logger,
	})
	return s
}

// Notifier returns the notifier jobs publish to.
func (s *Service) Notifier() *notify.Notifier { return s.notifier }

// Pool returns the egress pool, nil when proxies are disabled.
func (s *Service) Pool() *egress.Pool { return s.pool }

// Submit creates a job for params and queues it. It returns the job and
// its queue position, 0 when it started immediately.
func (s *Service) Submit(params model.Params) (*model.Job, int, error) {
	if !model.IsHTTPURL(params.Target) {
		return nil, 0, ErrInvalidTarget
	}
	params.Target = model.CleanURL(params.Target)
	if params.Quality == "" {
		params.Quality = model.TierBest
	}

	job := model.NewJob(params)
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.pruneLocked()
	s.mu.Unlock()

	// The queue publishes the queued event through publishPosition before
	// Submit returns. The job waits for that so subscribers never see it
	// running before it was queued.
	ready := make(chan struct{})
	pos, err := s.queue.Submit(job.ID, func(ctx context.Context) error {
		<-ready
		s.orch.Run(ctx, job)
		return nil
	})
	if err != nil {
		close(ready)
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return nil, 0, fmt.Errorf("submit %s: %w", job.ID, err)
	}

	close(ready)

	s.logger.Info("job submitted", "job_id", job.ID, "target", params.Target,
		"format", params.Quality, "mode", params.Mode, "position", pos)
	return job, pos, nil
}

// Cancel stops jobID. A queued job is finished as cancelled right away; a
// running job stops at its next checkpoint.
func (s *Service) Cancel(jobID string) (queue.CancelOutcome, error) {
	job, ok := s.lookup(jobID)
	if !ok {
		return queue.CancelNotFound, ErrJobNotFound
	}
	outcome := s.queue.Cancel(jobID)
	if outcome == queue.CancelRemovedQueued {
		s.cancelQueued(job)
	}
	return outcome, nil
}

// Job returns the job with the given ID.
func (s *Service) Job(jobID string) (*model.Job, error) {
	job, ok := s.lookup(jobID)
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// Jobs returns snapshots of every known job, newest first.
func (s *Service) Jobs() []model.JobSnapshot {
	s.mu.RLock()
	out := make([]model.JobSnapshot, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

// Position returns the queue position of a waiting job.
func (s *Service) Position(jobID string) (int, bool) {
	return s.queue.PositionOf(jobID)
}

// Session returns the live retry session of a running job.
func (s *Service) Session(jobID string) (download.Session, bool) {
	return s.orch.Session(jobID)
}

// QueueStatus is the queue view returned by Stats.
type QueueStatus struct {
	queue.Stats
	Waiting []queue.Entry `json:"waiting"`
	Dropped uint64        `json:"events_dropped"`
}

// Stats returns the queue counters and the wait list.
func (s *Service) Stats() QueueStatus {
	return QueueStatus{
		Stats:   s.queue.Stats(),
		Waiting: s.queue.Entries(),
		Dropped: s.notifier.Dropped(),
	}
}

// ProxyStats returns the egress pool statistics.
func (s *Service) ProxyStats() egress.Stats {
	if s.pool == nil {
		return egress.Stats{Provider: "none", Bad: []string{}}
	}
	return s.pool.Stats()
}

// ClearBadProxies empties the blacklist and returns how many entries it
// held.
func (s *Service) ClearBadProxies() int {
	if s.pool == nil {
		return 0
	}
	return s.pool.ClearBad()
}

// Run dispatches events until ctx is cancelled, then closes the queue:
// waiting jobs are finished as cancelled and running jobs are signalled and
// waited for.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	notifyCtx, stopNotify := context.WithCancel(context.WithoutCancel(ctx))
	g.Go(func() error {
		return s.notifier.Run(notifyCtx)
	})
	g.Go(func() error {
		defer stopNotify()
		<-gctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

func (s *Service) shutdown() {
	dropped := s.queue.Close()
	for _, id := range dropped {
		if job, ok := s.lookup(id); ok {
			s.cancelQueued(job)
		}
	}
	s.queue.Wait()
	s.logger.Info("queue drained", "discarded", len(dropped))
}

// cancelQueued finishes a job that never started.
func (s *Service) cancelQueued(job *model.Job) {
	job.SetError(download.ErrCancelled.Error())
	if err := job.Transition(model.StatusCancelled); err != nil {
		s.logger.Error("cannot cancel queued job", "job_id", job.ID, "error", err)
		return
	}
	s.notifier.Publish(job.ID, notify.Event{
		Status:    model.StatusCancelled,
		Message:   "Download cancelled",
		Timestamp: time.Now(),
	})
	if s.recorder == nil {
		return
	}
	snap := job.Snapshot()
	rec := download.Record{
		JobID:       snap.ID,
		Target:      snap.Target,
		Quality:     snap.Quality,
		Mode:        snap.Mode,
		Status:      snap.Status,
		Error:       download.ErrCancelled.Error(),
		CreatedAt:   snap.CreatedAt,
		CompletedAt: snap.CompletedAt,
	}
	if err := s.recorder.RecordTerminal(context.Background(), rec); err != nil {
		s.logger.Warn("recording cancelled job failed", "job_id", job.ID, "error", err)
	}
}

func (s *Service) publishPosition(jobID string, position int) {
	s.notifier.Publish(jobID, notify.Event{
		Status:    model.StatusQueued,
		Position:  position,
		Message:   fmt.Sprintf("Queued at position %d", position),
		Timestamp: time.Now(),
	})
}

func (s *Service) lookup(jobID string) (*model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// pruneLocked forgets the oldest finished jobs above maxJobs.
func (s *Service) pruneLocked() {
	if len(s.jobs) <= s.maxJobs {
		return
	}
	var finished []model.JobSnapshot
	for _, j := range s.jobs {
		if snap := j.Snapshot(); snap.Status.IsTerminal() {
			finished = append(finished, snap)
		}
	}
	sort.Slice(finished, func(a, b int) bool {
		return finished[a].UpdatedAt.Before(finished[b].UpdatedAt)
	})
	for _, snap := range finished {
		if len(s.jobs) <= s.maxJobs {
			return
		}
		delete(s.jobs, snap.ID)
	}
}
