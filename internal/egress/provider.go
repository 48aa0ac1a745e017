package egress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	ythttp "github.com/Jeffrey0117/Ytify/internal/http"
)

const (
	providerGetTimeout    = 5 * time.Second
	providerDeleteTimeout = 3 * time.Second

	// DefaultProbeURL is the target the prober checks candidates against.
	DefaultProbeURL = "https://www.youtube.com/"

	// DefaultProbeTimeout bounds a single candidate probe.
	DefaultProbeTimeout = 8 * time.Second
)

// ErrNoCandidate is returned by providers that have nothing to hand out.
var ErrNoCandidate = errors.New("egress: no candidate available")

// HTTPProvider talks to a proxy_pool style allocator.
//
// The allocator answers GET <getURL> with {"proxy":"host:port"} and accepts
// GET <deleteURL>?proxy=host:port, where deleteURL is getURL with its
// trailing "/get" replaced by "/delete".
type HTTPProvider struct {
	getURL    string
	deleteURL string
	client    *ythttp.Client
}

// NewHTTPProvider creates a provider for the allocator at getURL, for
// example "http://127.0.0.1:5010/get".
func NewHTTPProvider(getURL string) *HTTPProvider {
	getURL = strings.TrimRight(strings.TrimSpace(getURL), "/")
	deleteURL := getURL + "/delete"
	if strings.HasSuffix(getURL, "/get") {
		deleteURL = strings.TrimSuffix(getURL, "/get") + "/delete"
	}
	return &HTTPProvider{
		getURL:    getURL,
		deleteURL: deleteURL,
		client:    ythttp.NewClient(providerGetTimeout),
	}
}

// Name implements Provider.
func (p *HTTPProvider) Name() string { return p.getURL }

// Get implements Provider.
func (p *HTTPProvider) Get(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, providerGetTimeout)
	defer cancel()

	var reply struct {
		Proxy string `json:"proxy"`
	}
	if err := p.client.GetJSON(ctx, p.getURL, &reply); err != nil {
		return "", fmt.Errorf("egress provider get: %w", err)
	}
	if reply.Proxy == "" {
		return "", ErrNoCandidate
	}
	return reply.Proxy, nil
}

// Delete implements Provider.
func (p *HTTPProvider) Delete(ctx context.Context, address string) error {
	ctx, cancel := context.WithTimeout(ctx, providerDeleteTimeout)
	defer cancel()

	if _, err := p.client.Get(ctx, p.deleteURL+"?proxy="+url.QueryEscape(address)); err != nil {
		return fmt.Errorf("egress provider delete %s: %w", address, err)
	}
	return nil
}

// StaticProvider hands out a fixed list of proxies round-robin.
type StaticProvider struct {
	mu      sync.Mutex
	proxies []string
	next    int
}

// NewStaticProvider creates a provider over proxies. Blank and duplicate
// entries are dropped.
func NewStaticProvider(proxies []string) *StaticProvider {
	return &StaticProvider{proxies: normalizeProxyList(proxies)}
}

// Name implements Provider.
func (p *StaticProvider) Name() string { return "static" }

// Get implements Provider.
func (p *StaticProvider) Get(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return "", ErrNoCandidate
	}
	addr := p.proxies[p.next%len(p.proxies)]
	p.next++
	return addr, nil
}

// Delete implements Provider. The list is fixed, so nothing is removed; the
// pool's blacklist keeps the address out of rotation.
func (p *StaticProvider) Delete(context.Context, string) error { return nil }

// Len returns the number of configured proxies.
func (p *StaticProvider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

func normalizeProxyList(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, p := range raw {
		v := strings.TrimSpace(p)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// HTTPProber checks a candidate by fetching the probe URL through it.
type HTTPProber struct {
	// URL is the probe target. Empty means DefaultProbeURL.
	URL string

	// Timeout bounds one probe. Zero means DefaultProbeTimeout.
	Timeout time.Duration
}

// Probe implements Prober. Only a 200 response counts as healthy.
func (p HTTPProber) Probe(ctx context.Context, proxyURL string) bool {
	target := p.URL
	if target == "" {
		target = DefaultProbeURL
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	client, err := ythttp.NewProxyClient(proxyURL, timeout)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	code, err := client.Status(ctx, target)
	return err == nil && code == http.StatusOK
}
