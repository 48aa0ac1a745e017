// Package service owns submitted jobs from queueing to a terminal status
// and is what the API, the CLI and the TUI drive.
package service
