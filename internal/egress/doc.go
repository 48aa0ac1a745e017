// Package egress manages the proxies outbound fetches go through.
//
// A Pool asks a Provider for candidates, probes each one against the real
// target and keeps a process-wide blacklist of points that failed. When no
// healthy candidate turns up within the attempt budget the pool falls back
// to a direct connection (a nil *Point) instead of blocking.
//
//	pool := egress.NewPool(egress.Options{
//	    Provider: egress.NewHTTPProvider("http://127.0.0.1:5010/get"),
//	    Prober:   egress.HTTPProber{},
//	})
//	point := pool.Acquire(ctx) // nil means direct
//	...
//	pool.MarkBad(ctx, point)   // after an egress-related failure
package egress
