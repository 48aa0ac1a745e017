// Package classify maps raw fetch failure text to a failure category and
// its fixed retry policy.
//
// # Classification
//
// The table is an ordered list of (category, patterns); the first category
// with a matching pattern wins and unmatched text falls to Unknown:
//
//	cat, pol := classify.Classify(err.Error())
//	if !pol.Retryable {
//	    // surface immediately
//	}
//
// # Policies
//
// Policies are design constants and never change at runtime:
//
//	Category            Retry  Max  Backoff  Rotate  Downgrade
//	rate_limited        yes    3    60s      yes     no
//	geo_blocked         yes    5    2s       yes     no
//	private_video       no     0    -        no      no
//	age_restricted      no     0    -        no      no
//	network_error       yes    5    5s       no      no
//	proxy_error         yes    10   2s       yes     no
//	format_error        yes    3    1s       no      yes
//	unavailable         no     0    -        no      no
//	copyright           no     0    -        no      no
//	live_stream         no     0    -        no      no
//	unknown             yes    2    10s      yes     no
//
// # Failures
//
// NewFailure converts a classified error into the structure shown to
// users: category, English and localized messages, the original text
// truncated to 500 bytes and the retry budget.
package classify
