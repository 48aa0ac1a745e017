// Package cli implements the ytify command line.
//
//	ytify serve [--listen :8765]
//	ytify get [-a] [-f 720p] [-o dir] [--playlist m3u] <url>...
//	ytify classify [--json|--list] <error text>
//	ytify tui [--log-file path]
//	ytify version
//
// Settings are resolved from defaults, the --config file, environment
// variables and flags, in that order.
package cli
