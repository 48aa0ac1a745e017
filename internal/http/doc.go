// Package http provides the small HTTP client used around media fetches.
//
// The Client in this package handles:
//   - User-Agent headers
//   - Timeouts
//   - Requests routed through a candidate egress proxy
//   - JSON replies from an egress provider API
//
// # Basic Usage
//
//	client := http.NewClient(5 * time.Second)
//
//	var reply struct{ Proxy string `json:"proxy"` }
//	err := client.GetJSON(ctx, providerURL+"/get", &reply)
//
// # Probing Through a Proxy
//
//	probe, err := http.NewProxyClient("http://1.2.3.4:8080", 8*time.Second)
//	code, err := probe.Status(ctx, "https://www.youtube.com/")
//	healthy := err == nil && code == 200
package http
