package download

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Jeffrey0117/Ytify/internal/classify"
	"github.com/Jeffrey0117/Ytify/internal/egress"
	"github.com/Jeffrey0117/Ytify/internal/model"
	"github.com/Jeffrey0117/Ytify/internal/notify"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	errs     []error // consumed in order; nil or exhausted means success
	requests []Request
	onFetch  func(ctx context.Context, req Request)
}

func (f *scriptedFetcher) Fetch(ctx context.Context, req Request) (*FetchResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &FetchResult{Output: "/downloads/out.mp4", Title: "Clip", Metadata: map[string]string{"id": "abc"}}, nil
}

func repeat(msg string, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = errors.New(msg)
	}
	return out
}

type fakeEgress struct {
	mu       sync.Mutex
	acquired int
	bad      []string
}

func (f *fakeEgress) Acquire(context.Context) *egress.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired++
	return &egress.Point{Address: "10.0.0." + string(rune('0'+f.acquired)) + ":8080"}
}

func (f *fakeEgress) MarkBad(_ context.Context, p *egress.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bad = append(f.bad, p.Address)
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Publish(jobID string, ev notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev.JobID = jobID
	l.events = append(l.events, ev)
}

func (l *eventLog) statuses() []model.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.Status
	for _, ev := range l.events {
		if ev.Progress > 0 && ev.Progress < 100 && ev.Status == model.StatusRunning && ev.Attempt > 0 && ev.Message == "" {
			continue // progress ticks
		}
		out = append(out, ev.Status)
	}
	return out
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *fakeRecorder) RecordTerminal(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type harness struct {
	fetcher  *scriptedFetcher
	egress   *fakeEgress
	events   *eventLog
	recorder *fakeRecorder
	sleeps   []time.Duration
	orch     *Orchestrator
}

func newHarness(errs []error) *harness {
	h := &harness{
		fetcher:  &scriptedFetcher{errs: errs},
		egress:   &fakeEgress{},
		events:   &eventLog{},
		recorder: &fakeRecorder{},
	}
	h.orch = NewOrchestrator(Options{
		Fetcher:   h.fetcher,
		Egress:    h.egress,
		Publisher: h.events,
		Recorder:  h.recorder,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		},
	})
	return h
}

func newJob(tier model.Tier) *model.Job {
	return model.NewJob(model.Params{Target: "https://www.youtube.com/watch?v=abc", Quality: tier})
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	h := newHarness(nil)
	job := newJob(model.TierBest)

	res := h.orch.Run(context.Background(), job)
	if !res.Success || res.Status != model.StatusCompleted {
		t.Fatalf("Run() = %+v, want completed", res)
	}
	if res.Payload.Output != "/downloads/out.mp4" {
		t.Errorf("output = %q", res.Payload.Output)
	}

	snap := job.Snapshot()
	if snap.Status != model.StatusCompleted || snap.Progress != 100 || snap.Title != "Clip" {
		t.Errorf("job snapshot = %+v", snap)
	}
	if len(h.recorder.records) != 1 || h.recorder.records[0].Status != model.StatusCompleted {
		t.Errorf("records = %+v, want one completed", h.recorder.records)
	}
	if h.recorder.records[0].Metadata["id"] != "abc" {
		t.Errorf("record metadata = %v", h.recorder.records[0].Metadata)
	}
	got := h.events.statuses()
	want := []model.Status{model.StatusRunning, model.StatusCompleted}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("event statuses = %v, want %v", got, want)
	}
	if h.egress.acquired != 1 {
		t.Errorf("acquired = %d, want 1", h.egress.acquired)
	}
	if h.orch.Active() != 0 {
		t.Error("session should be closed after Run")
	}
}

func TestRun_RateLimitedExhausts(t *testing.T) {
	h := newHarness(repeat("HTTP Error 429 too many requests", 10))
	job := newJob(model.TierBest)

	res := h.orch.Run(context.Background(), job)
	if res.Success || res.Status != model.StatusFailed {
		t.Fatalf("Run() = %+v, want failed", res)
	}
	if n := len(h.fetcher.requests); n != 4 {
		t.Errorf("attempts = %d, want 4", n)
	}
	if res.Failure.Category != classify.RateLimited || res.Failure.Attempts != 4 || res.Failure.Retryable {
		t.Errorf("failure = %+v", res.Failure)
	}
	if len(h.sleeps) != 3 {
		t.Fatalf("sleeps = %v, want 3", h.sleeps)
	}
	for _, d := range h.sleeps {
		if d != 60*time.Second {
			t.Errorf("backoff = %v, want 60s", d)
		}
	}
	// The final, exhausted failure does not rotate.
	if len(h.egress.bad) != 3 {
		t.Errorf("marked bad = %v, want 3 points", h.egress.bad)
	}
	if h.egress.acquired != 4 {
		t.Errorf("acquired = %d, want 4", h.egress.acquired)
	}

	// Each attempt went through a fresh proxy.
	seen := map[string]bool{}
	for _, r := range h.fetcher.requests {
		if seen[r.Proxy] {
			t.Errorf("proxy %q reused after rotation", r.Proxy)
		}
		seen[r.Proxy] = true
	}
	if len(h.recorder.records) != 1 || h.recorder.records[0].Status != model.StatusFailed {
		t.Errorf("records = %+v, want one failed", h.recorder.records)
	}
}

func TestRun_TerminalCategoryNoRetry(t *testing.T) {
	h := newHarness(repeat("ERROR: Private video. Sign in", 1))
	job := newJob(model.TierBest)

	res := h.orch.Run(context.Background(), job)
	if res.Status != model.StatusFailed || res.Failure.Category != classify.PrivateContent {
		t.Fatalf("Run() = %+v", res)
	}
	if len(h.fetcher.requests) != 1 || len(h.sleeps) != 0 {
		t.Errorf("attempts = %d, sleeps = %d, want 1, 0", len(h.fetcher.requests), len(h.sleeps))
	}
	if res.Failure.Message == "" || res.Failure.Original == "" {
		t.Errorf("failure missing text: %+v", res.Failure)
	}
	if job.Snapshot().Error == "" {
		t.Error("job should carry the failure message")
	}
}

func TestRun_FormatDowngradeBoundedByPolicy(t *testing.T) {
	h := newHarness(repeat("Requested format not available", 10))
	job := newJob(model.TierBest)

	res := h.orch.Run(context.Background(), job)
	if res.Status != model.StatusFailed || res.Failure.Category != classify.FormatUnavailable {
		t.Fatalf("Run() = %+v", res)
	}

	want := []model.Tier{model.TierBest, model.Tier1080p, model.Tier720p, model.Tier480p}
	if len(h.fetcher.requests) != len(want) {
		t.Fatalf("attempts = %d, want %d", len(h.fetcher.requests), len(want))
	}
	for i, r := range h.fetcher.requests {
		if r.Quality != want[i] {
			t.Errorf("attempt %d tier = %q, want %q", i+1, r.Quality, want[i])
		}
	}
	if h.egress.acquired != 1 || len(h.egress.bad) != 0 {
		t.Errorf("format failures should not rotate egress: acquired %d bad %v", h.egress.acquired, h.egress.bad)
	}
}

func TestRun_DowngradeAtLowestTierFails(t *testing.T) {
	h := newHarness(repeat("requested format not available", 10))
	job := newJob(model.Tier480p)

	res := h.orch.Run(context.Background(), job)
	if res.Status != model.StatusFailed {
		t.Fatalf("Run() status = %q, want failed", res.Status)
	}
	if n := len(h.fetcher.requests); n != 2 {
		t.Fatalf("attempts = %d, want 2", n)
	}
	if h.fetcher.requests[1].Quality != model.Tier360p {
		t.Errorf("second attempt tier = %q, want 360p", h.fetcher.requests[1].Quality)
	}
	if res.Failure.Retryable {
		t.Error("exhausted tier failure should not be retryable")
	}
	if job.Snapshot().Quality != model.Tier360p {
		t.Errorf("job quality = %q, want 360p", job.Snapshot().Quality)
	}
}

func TestRun_AttemptsNeverExceedPolicy(t *testing.T) {
	tests := []struct {
		msg  string
		want int
	}{
		{"connection reset by peer", 6},
		{"Unable to connect to proxy", 11},
		{"geo blocked", 6},
		{"something odd", 3},
		{"Video unavailable", 1},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			h := newHarness(repeat(tt.msg, 20))
			h.orch.Run(context.Background(), newJob(model.TierBest))
			if n := len(h.fetcher.requests); n != tt.want {
				t.Errorf("attempts = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestRun_NetworkRetryKeepsEgress(t *testing.T) {
	h := newHarness(repeat("connection reset by peer", 2))
	res := h.orch.Run(context.Background(), newJob(model.TierBest))

	if !res.Success {
		t.Fatalf("Run() = %+v, want success on third attempt", res)
	}
	if h.egress.acquired != 1 || len(h.egress.bad) != 0 {
		t.Errorf("acquired %d, bad %v; network errors must not rotate", h.egress.acquired, h.egress.bad)
	}
	got := h.events.statuses()
	want := []model.Status{
		model.StatusRunning, model.StatusRetrying,
		model.StatusRunning, model.StatusRetrying,
		model.StatusRunning, model.StatusCompleted,
	}
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statuses = %v, want %v", got, want)
			break
		}
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := newJob(model.TierBest)
	res := h.orch.Run(ctx, job)
	if res.Status != model.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", res.Status)
	}
	if len(h.fetcher.requests) != 0 {
		t.Errorf("fetch called %d times after cancellation", len(h.fetcher.requests))
	}
	if len(h.recorder.records) != 1 || h.recorder.records[0].Status != model.StatusCancelled {
		t.Errorf("records = %+v", h.recorder.records)
	}
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	h := newHarness(repeat("HTTP Error 429", 5))
	ctx, cancel := context.WithCancel(context.Background())
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := h.orch.Run(ctx, newJob(model.TierBest))
	if res.Status != model.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", res.Status)
	}
	if n := len(h.fetcher.requests); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestRun_InFlightFetchNotInterrupted(t *testing.T) {
	h := newHarness(nil)
	ctx, cancel := context.WithCancel(context.Background())
	var fetchCtxErr error
	h.fetcher.onFetch = func(fctx context.Context, _ Request) {
		cancel()
		fetchCtxErr = fctx.Err()
	}

	res := h.orch.Run(ctx, newJob(model.TierBest))
	if fetchCtxErr != nil {
		t.Errorf("fetch context error = %v, want nil", fetchCtxErr)
	}
	if res.Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", res.Status)
	}
}

func TestRun_ProgressAndSession(t *testing.T) {
	h := newHarness(repeat("HTTP Error 429", 1))
	job := newJob(model.TierBest)

	var mid Session
	var ok bool
	h.fetcher.onFetch = func(_ context.Context, req Request) {
		req.OnProgress(Progress{Percent: 42.5, Speed: "1.2MiB/s", ETA: "00:10"})
		mid, ok = h.orch.Session(job.ID)
	}

	h.orch.Run(context.Background(), job)

	if !ok {
		t.Fatal("session not visible during fetch")
	}
	if len(mid.EgressTried) != 2 || mid.Retries != 1 {
		t.Errorf("session = %+v, want 2 proxies and 1 retry", mid)
	}
	if errs := mid.Errors(); len(errs) != 1 || errs[0].Category != classify.RateLimited || errs[0].Index != 1 {
		t.Errorf("session errors = %+v", errs)
	}

	var sawProgress bool
	for _, ev := range h.events.events {
		if ev.Progress == 42.5 && ev.Speed == "1.2MiB/s" && ev.ETA == "00:10" {
			sawProgress = true
		}
	}
	if !sawProgress {
		t.Error("progress event not published")
	}
	if _, ok := h.orch.Session(job.ID); ok {
		t.Error("session should be gone after Run")
	}
}

func TestRun_NoEgressIsDirect(t *testing.T) {
	f := &scriptedFetcher{}
	orch := NewOrchestrator(Options{Fetcher: f, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	res := orch.Run(context.Background(), newJob(model.TierBest))
	if !res.Success {
		t.Fatalf("Run() = %+v", res)
	}
	if f.requests[0].Proxy != "" {
		t.Errorf("proxy = %q, want direct", f.requests[0].Proxy)
	}
}

func TestWaitForRetry(t *testing.T) {
	if err := waitForRetry(context.Background(), time.Millisecond); err != nil {
		t.Errorf("waitForRetry = %v, want nil", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitForRetry(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("waitForRetry on cancelled ctx = %v, want context.Canceled", err)
	}
}
