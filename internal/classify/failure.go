package classify

import "time"

// maxOriginalLen bounds the diagnostic text carried in a Failure.
const maxOriginalLen = 500

// Failure is the user-visible description of a terminal or pending failure.
type Failure struct {
	Category  Category   `json:"category"`
	Message   string     `json:"message"`
	MessageEN string     `json:"message_en"`
	Original  string     `json:"original_error"`
	Retryable bool       `json:"retryable"`
	Attempts  int        `json:"attempts"`
	RetryInfo *RetryInfo `json:"retry_info,omitempty"`
}

// RetryInfo describes the retry budget of a retryable category.
type RetryInfo struct {
	MaxRetries      int           `json:"max_retries"`
	CurrentRetry    int           `json:"current_retry"`
	Delay           time.Duration `json:"delay"`
	WillChangeProxy bool          `json:"will_change_proxy"`
	WillDowngrade   bool          `json:"will_downgrade"`
}

// NewFailure builds the user-visible failure for raw error text that was
// classified as c with policy p after the given number of retries.
//
// Retryable reports whether another retry would still be within budget;
// it is false for terminal categories and for exhausted ones.
func NewFailure(raw string, c Category, p Policy, retries int) *Failure {
	f := &Failure{
		Category:  c,
		Message:   p.MessageLocalized,
		MessageEN: p.Message,
		Original:  Truncate(raw, maxOriginalLen),
		Retryable: p.Retryable && retries < p.MaxRetries,
		Attempts:  retries + 1,
	}
	if p.Retryable {
		f.RetryInfo = &RetryInfo{
			MaxRetries:      p.MaxRetries,
			CurrentRetry:    retries,
			Delay:           p.Backoff,
			WillChangeProxy: p.RotateEgress,
			WillDowngrade:   p.DowngradeQuality,
		}
	}
	return f
}

// Error implements error so a Failure can travel through error returns.
func (f *Failure) Error() string {
	return string(f.Category) + ": " + f.MessageEN
}

// Truncate shortens s to at most max bytes without splitting a UTF-8 rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
