package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "ytify"

// Client wraps HTTP operations used around a fetch: talking to an egress
// provider, probing candidate proxies and downloading thumbnails.
//
// Client provides:
//   - Configured User-Agent header
//   - Timeout handling
//   - Optional routing through an HTTP proxy
//   - JSON decoding of small API responses
//
// Example usage:
//
//	client := NewClient(5 * time.Second)
//
//	// Ask a proxy pool for a candidate
//	var reply struct{ Proxy string `json:"proxy"` }
//	err := client.GetJSON(ctx, "http://127.0.0.1:5010/get", &reply)
//
//	// Probe the real target through that candidate
//	probe, _ := NewProxyClient("http://"+reply.Proxy, 8*time.Second)
//	code, err := probe.Status(ctx, "https://www.youtube.com/")
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client with the given timeout and the default
// User-Agent.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  DefaultUserAgent,
	}
}

// NewProxyClient creates a client whose requests all go through proxyURL.
//
// proxyURL must be an absolute URL such as "http://1.2.3.4:8080".
func NewProxyClient(proxyURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("proxy url %q is not absolute", proxyURL)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		},
		userAgent: DefaultUserAgent,
	}, nil
}

// Get performs a GET request and returns the response body as bytes.
//
// Returns an error if:
//   - The request fails
//   - The response status is not 200 OK
//   - Reading the body fails
//
// Example:
//
//	data, err := client.Get(ctx, "https://i.ytimg.com/vi/abc/maxresdefault.jpg")
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// GetJSON performs a GET request and decodes the JSON response into v.
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Status performs a GET request and returns only the status code. The body
// is discarded.
func (c *Client) Status(ctx context.Context, rawURL string) (int, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// DownloadBytes downloads a small file such as cover art into memory.
func (c *Client) DownloadBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return c.Get(ctx, rawURL)
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	return c.httpClient.Do(req)
}
