package egress

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// DefaultAttempts is the number of provider candidates Acquire tries before
// falling back to a direct connection.
const DefaultAttempts = 20

// statsBadLimit caps the blacklist sample returned by Stats.
const statsBadLimit = 20

// Point is an egress proxy. A nil *Point means a direct connection.
type Point struct {
	// Address is the proxy as handed out by the provider, usually
	// "host:port".
	Address string
}

// URL returns the proxy as an absolute URL, defaulting to the http scheme.
func (p *Point) URL() string {
	if p == nil {
		return ""
	}
	if strings.Contains(p.Address, "://") {
		return p.Address
	}
	return "http://" + p.Address
}

// Provider is an external allocator of egress points.
type Provider interface {
	// Name identifies the provider in stats and logs.
	Name() string

	// Get returns one candidate address.
	Get(ctx context.Context) (string, error)

	// Delete tells the provider that an address is unusable.
	Delete(ctx context.Context, address string) error
}

// Prober checks a candidate against the real target before it is handed
// out.
type Prober interface {
	Probe(ctx context.Context, proxyURL string) bool
}

// Options configures a Pool.
type Options struct {
	// Provider supplies candidates. With no provider every Acquire returns
	// nil (direct connection).
	Provider Provider

	// Prober health-checks candidates. With no prober candidates are used
	// unchecked.
	Prober Prober

	// Attempts bounds the candidates tried per Acquire. Zero means
	// DefaultAttempts.
	Attempts int

	Logger *slog.Logger
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Provider string   `json:"provider,omitempty"`
	Current  string   `json:"current,omitempty"`
	BadCount int      `json:"bad_count"`
	Bad      []string `json:"bad"`
}

// Pool hands out egress points and keeps the process-wide blacklist.
//
// The blacklist only grows until ClearBad is called. All methods are safe
// for concurrent use.
type Pool struct {
	provider Provider
	prober   Prober
	attempts int
	logger   *slog.Logger

	mu      sync.Mutex
	bad     map[string]struct{}
	order   []string
	current string
}

// NewPool creates a Pool from opts.
func NewPool(opts Options) *Pool {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pool{
		provider: opts.Provider,
		prober:   opts.Prober,
		attempts: opts.Attempts,
		logger:   opts.Logger,
		bad:      make(map[string]struct{}),
	}
}

// Acquire returns a healthy, non-blacklisted egress point, or nil for a
// direct connection.
//
// Up to Attempts candidates are requested from the provider. Blacklisted
// candidates are skipped and candidates that fail the probe are
// blacklisted. Provider errors are logged and spend an attempt. When every
// attempt is spent, or ctx is done, Acquire returns nil rather than
// blocking.
func (p *Pool) Acquire(ctx context.Context) *Point {
	if p.provider == nil {
		return nil
	}

	for i := 0; i < p.attempts; i++ {
		if ctx.Err() != nil {
			break
		}

		addr, err := p.provider.Get(ctx)
		if err != nil {
			p.logger.Warn("egress provider get failed", "provider", p.provider.Name(), "attempt", i+1, "error", err)
			continue
		}
		addr = strings.TrimSpace(addr)
		if addr == "" || p.isBad(addr) {
			continue
		}

		point := &Point{Address: addr}
		if p.prober != nil && !p.prober.Probe(ctx, point.URL()) {
			p.logger.Info("egress candidate failed probe", "proxy", addr)
			p.MarkBad(ctx, point)
			continue
		}

		p.mu.Lock()
		p.current = addr
		p.mu.Unlock()
		p.logger.Debug("egress acquired", "proxy", addr)
		return point
	}

	p.logger.Warn("egress attempts exhausted, using direct connection", "attempts", p.attempts)
	p.mu.Lock()
	p.current = ""
	p.mu.Unlock()
	return nil
}

// MarkBad blacklists point. Marking an already blacklisted point is a
// no-op. The first time a point is marked the provider, if any, is asked
// to delete it; failures are logged only.
func (p *Pool) MarkBad(ctx context.Context, point *Point) {
	if point == nil || point.Address == "" {
		return
	}

	p.mu.Lock()
	if _, ok := p.bad[point.Address]; ok {
		p.mu.Unlock()
		return
	}
	p.bad[point.Address] = struct{}{}
	p.order = append(p.order, point.Address)
	if p.current == point.Address {
		p.current = ""
	}
	p.mu.Unlock()

	p.logger.Info("egress blacklisted", "proxy", point.Address)
	if p.provider == nil {
		return
	}
	if err := p.provider.Delete(ctx, point.Address); err != nil {
		p.logger.Warn("egress provider delete failed", "proxy", point.Address, "error", err)
	}
}

// ListBad returns the blacklist in the order points were added.
func (p *Pool) ListBad() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// ClearBad empties the blacklist and returns how many points it held.
func (p *Pool) ClearBad() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.order)
	p.bad = make(map[string]struct{})
	p.order = nil
	return n
}

// Stats returns the provider name, the last acquired point and a sample of
// the blacklist.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Current: p.current, BadCount: len(p.order)}
	if p.provider != nil {
		s.Provider = p.provider.Name()
	}
	n := len(p.order)
	if n > statsBadLimit {
		n = statsBadLimit
	}
	s.Bad = make([]string, n)
	copy(s.Bad, p.order[:n])
	return s
}

func (p *Pool) isBad(addr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.bad[addr]
	return ok
}
