package statusmirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Jeffrey0117/Ytify/internal/notify"
)

const (
	// DefaultTTL is how long a job hash survives its last update.
	DefaultTTL = 24 * time.Hour

	// DefaultWriteTimeout bounds one mirror write.
	DefaultWriteTimeout = 2 * time.Second

	// DefaultBuffer is how many events may wait for the writer.
	DefaultBuffer = 256
)

// ErrNotFound is returned by Lookup for jobs with no mirrored status.
var ErrNotFound = errors.New("statusmirror: job not found")

// Options configures a Mirror.
type Options struct {
	TTL          time.Duration
	WriteTimeout time.Duration
	Buffer       int
	Logger       *slog.Logger
}

// Mirror copies job status events into Redis hashes keyed job:<id>, so
// other processes can read job state without talking to this one.
//
// It is a notify.Subscriber. Send only queues the event; a single writer
// goroutine talks to Redis, so a slow or unreachable server never holds up
// the notifier. Events arriving while the queue is full are dropped and
// counted. Write failures are logged and counted rather than returned, so a
// Redis outage does not unsubscribe the mirror.
//
// Example:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	mirror := statusmirror.New(rdb, statusmirror.Options{})
//	notifier.Subscribe("", mirror)
type Mirror struct {
	client   *redis.Client
	ttl      time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	failures atomic.Uint64
	dropped  atomic.Uint64

	pending chan notify.Event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New creates a Mirror writing through client and starts its writer.
// Close stops it.
func New(client *redis.Client, opts Options) *Mirror {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mirror{
		client:  client,
		ttl:     opts.TTL,
		timeout: opts.WriteTimeout,
		logger:  logger,
		pending: make(chan notify.Event, opts.Buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.writeLoop()
	return m
}

// Key returns the Redis key holding jobID's status.
func Key(jobID string) string {
	return "job:" + jobID
}

// Send implements notify.Subscriber. It never blocks.
func (m *Mirror) Send(ev notify.Event) error {
	select {
	case <-m.done:
		return notify.ErrSubscriberClosed
	default:
	}
	select {
	case m.pending <- ev:
	default:
		m.dropped.Add(1)
	}
	return nil
}

// Failures returns how many writes have failed.
func (m *Mirror) Failures() uint64 {
	return m.failures.Load()
}

// Dropped returns how many events were discarded because the writer was
// behind.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// Close makes later sends fail so the notifier drops the mirror, then
// waits for the writer to flush what is queued. The flush as a whole is
// bounded by the write timeout. It does not close the Redis client.
func (m *Mirror) Close() {
	m.once.Do(func() { close(m.done) })
	<-m.stopped
}

func (m *Mirror) writeLoop() {
	defer close(m.stopped)
	for {
		select {
		case ev := <-m.pending:
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			m.write(ctx, ev)
			cancel()
		case <-m.done:
			ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
			defer cancel()
			for {
				select {
				case ev := <-m.pending:
					m.write(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Mirror) write(ctx context.Context, ev notify.Event) {
	key := Key(ev.JobID)
	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, Fields(ev))
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	if err != nil {
		m.failures.Add(1)
		m.logger.Warn("status mirror write failed", "job_id", ev.JobID, "error", err)
	}
}

// Lookup returns the mirrored fields for jobID.
func (m *Mirror) Lookup(ctx context.Context, jobID string) (map[string]string, error) {
	fields, err := m.client.HGetAll(ctx, Key(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

// Fields flattens ev into the hash fields written for it. Empty optional
// values are left out so earlier values (a title, say) survive later
// updates that do not carry them.
func Fields(ev notify.Event) map[string]any {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	fields := map[string]any{
		"status":     string(ev.Status),
		"progress":   strconv.FormatFloat(ev.Progress, 'f', 1, 64),
		"updated_at": ts.UTC().Format(time.RFC3339Nano),
	}
	optional := map[string]string{
		"message": ev.Message,
		"title":   ev.Title,
		"output":  ev.Output,
		"speed":   ev.Speed,
		"eta":     ev.ETA,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	if ev.Attempt > 0 {
		fields["attempt"] = ev.Attempt
	}
	if ev.Position > 0 {
		fields["position"] = ev.Position
	}
	if ev.Failure != nil {
		fields["error_category"] = string(ev.Failure.Category)
		fields["error"] = ev.Failure.Message
		fields["error_en"] = ev.Failure.MessageEN
		fields["attempts"] = ev.Failure.Attempts
	}
	return fields
}
