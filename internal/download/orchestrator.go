package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Jeffrey0117/Ytify/internal/classify"
	"github.com/Jeffrey0117/Ytify/internal/egress"
	"github.com/Jeffrey0117/Ytify/internal/model"
	"github.com/Jeffrey0117/Ytify/internal/notify"
)

// ErrCancelled is reported for jobs stopped by cancellation.
var ErrCancelled = errors.New("download: cancelled")

// Progress is a progress report from a running fetch.
type Progress struct {
	Percent float64
	Speed   string
	ETA     string
}

// Request is what the orchestrator asks the fetcher to do for one attempt.
type Request struct {
	Target  string
	Quality model.Tier
	Mode    model.Mode

	// Proxy is the egress proxy URL, empty for a direct connection.
	Proxy string

	// OnProgress may be called any number of times during the fetch.
	OnProgress func(Progress)
}

// FetchResult is the outcome of a successful fetch.
type FetchResult struct {
	// Output locates the produced file: a local path or a storage URI.
	Output   string            `json:"output"`
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Fetcher performs one fetch attempt. The returned error text is what
// failures are classified on.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*FetchResult, error)
}

// Egress hands out and blacklists egress points.
type Egress interface {
	Acquire(ctx context.Context) *egress.Point
	MarkBad(ctx context.Context, point *egress.Point)
}

// Publisher receives status events.
type Publisher interface {
	Publish(jobID string, ev notify.Event)
}

// Record is the terminal outcome of a job handed to the Recorder.
type Record struct {
	JobID       string
	Target      string
	Quality     model.Tier
	Mode        model.Mode
	Status      model.Status
	Title       string
	Output      string
	Error       string
	Metadata    map[string]string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Recorder persists terminal outcomes. It is called once per job.
type Recorder interface {
	RecordTerminal(ctx context.Context, rec Record) error
}

// Options wires an Orchestrator to its collaborators. Fetcher is required;
// the rest are optional.
type Options struct {
	Fetcher   Fetcher
	Egress    Egress
	Publisher Publisher
	Recorder  Recorder
	Logger    *slog.Logger

	// Sleep waits between attempts. It must return early with ctx.Err()
	// when ctx is done. Defaults to a timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Attempt is one fetch attempt recorded in a Session.
type Attempt struct {
	Index    int               `json:"attempt"`
	Tier     model.Tier        `json:"format"`
	Egress   string            `json:"proxy,omitempty"`
	OK       bool              `json:"ok"`
	Category classify.Category `json:"category,omitempty"`
	Message  string            `json:"message,omitempty"`
	At       time.Time         `json:"at"`
}

// Session is the retry state of a running job.
type Session struct {
	JobID       string     `json:"task_id"`
	Retries     int        `json:"retries"`
	Tier        model.Tier `json:"format"`
	Attempts    []Attempt  `json:"attempts"`
	EgressTried []string   `json:"proxies_tried"`
	StartedAt   time.Time  `json:"started_at"`

	tried map[string]bool
}

// Errors returns the failed attempts in order.
func (s Session) Errors() []Attempt {
	var out []Attempt
	for _, a := range s.Attempts {
		if !a.OK {
			out = append(out, a)
		}
	}
	return out
}

func (s *Session) clone() Session {
	c := *s
	c.Attempts = append([]Attempt(nil), s.Attempts...)
	c.EgressTried = append([]string(nil), s.EgressTried...)
	c.tried = nil
	return c
}

// Result is the outcome of Run.
type Result struct {
	Status  model.Status
	Success bool
	Payload *FetchResult

	// Failure describes why the job failed; nil on success and on
	// cancellation.
	Failure *classify.Failure
}

// Orchestrator runs jobs through the retry state machine.
//
// For each attempt it picks an egress point, calls the Fetcher and, on
// failure, classifies the error text to decide whether to stop, rotate the
// egress point, step the quality tier down or simply wait and retry.
// Every state change is published.
type Orchestrator struct {
	fetcher   Fetcher
	egress    Egress
	publisher Publisher
	recorder  Recorder
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = waitForRetry
	}
	return &Orchestrator{
		fetcher:   opts.Fetcher,
		egress:    opts.Egress,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		sleep:     opts.Sleep,
		sessions:  make(map[string]*Session),
	}
}

// Run drives job to a terminal status and returns the outcome.
//
// Cancelling ctx stops the job at the next checkpoint: before an attempt
// or during a backoff wait. An attempt already in flight runs to
// completion.
func (o *Orchestrator) Run(ctx context.Context, job *model.Job) Result {
	o.openSession(job)
	defer o.closeSession(job.ID)

	logger := o.logger.With("job_id", job.ID)
	tier := job.Params.Quality
	retries := 0
	needEgress := true
	var point *egress.Point

	for {
		if ctx.Err() != nil {
			return o.cancelled(job)
		}

		if needEgress {
			point = o.acquire(ctx)
			needEgress = false
			o.updateSession(job.ID, func(s *Session) {
				if point != nil && !s.tried[point.Address] {
					s.tried[point.Address] = true
					s.EgressTried = append(s.EgressTried, point.Address)
				}
			})
		}
		if ctx.Err() != nil {
			return o.cancelled(job)
		}

		if err := job.Transition(model.StatusRunning); err != nil {
			logger.Error("cannot start attempt", "error", err)
			return o.failed(job, classify.NewFailure(err.Error(), classify.Unknown, classify.PolicyFor(classify.Unknown), retries))
		}

		attempt := retries + 1
		proxy := point.URL()
		o.publish(job, notify.Event{
			Status:  model.StatusRunning,
			Attempt: attempt,
			Message: fmt.Sprintf("Attempt %d at %s", attempt, tier),
		})
		logger.Info("fetch attempt", "attempt", attempt, "format", tier, "proxy", proxy)

		res, err := o.fetcher.Fetch(context.WithoutCancel(ctx), Request{
			Target:  job.Params.Target,
			Quality: tier,
			Mode:    job.Params.Mode,
			Proxy:   proxy,
			OnProgress: func(p Progress) {
				job.SetProgress(p.Percent)
				o.publish(job, notify.Event{
					Status:   model.StatusRunning,
					Progress: p.Percent,
					Speed:    p.Speed,
					ETA:      p.ETA,
					Attempt:  attempt,
				})
			},
		})

		if err == nil {
			o.updateSession(job.ID, func(s *Session) {
				s.Attempts = append(s.Attempts, Attempt{Index: attempt, Tier: tier, Egress: proxy, OK: true, At: time.Now()})
			})
			return o.completed(job, res)
		}

		cat, pol := classify.Classify(err.Error())
		failure := classify.NewFailure(err.Error(), cat, pol, retries)
		o.updateSession(job.ID, func(s *Session) {
			s.Attempts = append(s.Attempts, Attempt{
				Index: attempt, Tier: tier, Egress: proxy,
				Category: cat, Message: failure.Original, At: time.Now(),
			})
		})
		logger.Warn("fetch attempt failed", "attempt", attempt, "category", cat, "error", failure.Original)

		if !failure.Retryable {
			return o.failed(job, failure)
		}

		if pol.DowngradeQuality {
			next, ok := tier.Downgrade()
			if !ok {
				failure.Retryable = false
				return o.failed(job, failure)
			}
			logger.Info("downgrading quality", "from", tier, "to", next)
			tier = next
			job.SetQuality(tier)
			o.updateSession(job.ID, func(s *Session) { s.Tier = tier })
		}

		if pol.RotateEgress {
			if point != nil {
				o.markBad(ctx, point)
			}
			needEgress = true
		}

		if err := job.Transition(model.StatusRetrying); err != nil {
			logger.Error("cannot enter retry", "error", err)
			return o.failed(job, failure)
		}
		job.SetError(failure.Message)
		o.publish(job, notify.Event{
			Status:  model.StatusRetrying,
			Attempt: attempt,
			Message: fmt.Sprintf("%s Retrying in %s (%d/%d)", pol.Message, pol.Backoff, retries+1, pol.MaxRetries),
			Failure: failure,
		})

		if err := o.sleep(ctx, pol.Backoff); err != nil {
			return o.cancelled(job)
		}
		retries++
		o.updateSession(job.ID, func(s *Session) { s.Retries = retries })
	}
}

// Session returns a copy of the live retry session of jobID.
func (o *Orchestrator) Session(jobID string) (Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[jobID]
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Active returns the number of jobs with a live session.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

func (o *Orchestrator) completed(job *model.Job, res *FetchResult) Result {
	if res == nil {
		res = &FetchResult{}
	}
	job.SetResult(res.Output, res.Title, res.Metadata)
	if err := job.Transition(model.StatusCompleted); err != nil {
		o.logger.Error("cannot complete job", "job_id", job.ID, "error", err)
	}
	o.publish(job, notify.Event{
		Status:   model.StatusCompleted,
		Progress: 100,
		Title:    res.Title,
		Output:   res.Output,
		Message:  "Download completed",
	})
	o.record(job, res, "")
	o.logger.Info("job completed", "job_id", job.ID, "output", res.Output)
	return Result{Status: model.StatusCompleted, Success: true, Payload: res}
}

func (o *Orchestrator) failed(job *model.Job, failure *classify.Failure) Result {
	job.SetError(failure.Message)
	if err := job.Transition(model.StatusFailed); err != nil {
		o.logger.Error("cannot fail job", "job_id", job.ID, "error", err)
	}
	o.publish(job, notify.Event{
		Status:  model.StatusFailed,
		Message: failure.Message,
		Failure: failure,
	})
	o.record(job, nil, failure.Original)
	o.logger.Warn("job failed", "job_id", job.ID, "category", failure.Category, "attempts", failure.Attempts)
	return Result{Status: model.StatusFailed, Failure: failure}
}

func (o *Orchestrator) cancelled(job *model.Job) Result {
	job.SetError(ErrCancelled.Error())
	if err := job.Transition(model.StatusCancelled); err != nil {
		o.logger.Error("cannot cancel job", "job_id", job.ID, "error", err)
	}
	o.publish(job, notify.Event{Status: model.StatusCancelled, Message: "Download cancelled"})
	o.record(job, nil, ErrCancelled.Error())
	o.logger.Info("job cancelled", "job_id", job.ID)
	return Result{Status: model.StatusCancelled}
}

func (o *Orchestrator) record(job *model.Job, res *FetchResult, errMsg string) {
	if o.recorder == nil {
		return
	}
	snap := job.Snapshot()
	rec := Record{
		JobID:       snap.ID,
		Target:      snap.Target,
		Quality:     snap.Quality,
		Mode:        snap.Mode,
		Status:      snap.Status,
		Title:       snap.Title,
		Output:      snap.Output,
		Error:       errMsg,
		CreatedAt:   snap.CreatedAt,
		CompletedAt: snap.CompletedAt,
	}
	if res != nil {
		rec.Metadata = res.Metadata
	}
	if err := o.recorder.RecordTerminal(context.Background(), rec); err != nil {
		o.logger.Warn("recording terminal status failed", "job_id", job.ID, "error", err)
	}
}

func (o *Orchestrator) acquire(ctx context.Context) *egress.Point {
	if o.egress == nil {
		return nil
	}
	return o.egress.Acquire(ctx)
}

func (o *Orchestrator) markBad(ctx context.Context, point *egress.Point) {
	if o.egress == nil {
		return
	}
	o.egress.MarkBad(context.WithoutCancel(ctx), point)
}

func (o *Orchestrator) publish(job *model.Job, ev notify.Event) {
	if o.publisher == nil {
		return
	}
	if ev.Progress == 0 {
		ev.Progress = job.Snapshot().Progress
	}
	o.publisher.Publish(job.ID, ev)
}

func (o *Orchestrator) openSession(job *model.Job) {
	s := &Session{
		JobID:     job.ID,
		Tier:      job.Params.Quality,
		StartedAt: time.Now(),
		tried:     make(map[string]bool),
	}
	o.mu.Lock()
	o.sessions[job.ID] = s
	o.mu.Unlock()
}

func (o *Orchestrator) updateSession(jobID string, fn func(*Session)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.sessions[jobID]; ok {
		fn(s)
	}
}

func (o *Orchestrator) closeSession(jobID string) {
	o.mu.Lock()
	delete(o.sessions, jobID)
	o.mu.Unlock()
}

func waitForRetry(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
