// Package download runs a single job through its retry state machine.
//
// # Orchestrator
//
// The Orchestrator owns a job from dispatch to a terminal status:
//
//  1. Pick an egress point (first attempt, or after a rotation)
//  2. Call the Fetcher at the current quality tier
//  3. On success: mark the job completed, publish, record
//  4. On failure: classify the error text and look up its policy
//  5. Stop if the category is terminal or its retry budget is spent
//  6. Otherwise rotate the egress point and/or step the tier down,
//     publish a retrying event, back off and go to 1
//
// # Basic Usage
//
//	orch := download.NewOrchestrator(download.Options{
//	    Fetcher:   ytdlp.NewFetcher(ytdlp.Options{OutputDir: dir}),
//	    Egress:    pool,
//	    Publisher: notifier,
//	    Recorder:  history,
//	})
//
//	res := orch.Run(ctx, job)
//	if !res.Success && res.Failure != nil {
//	    fmt.Println(res.Failure.Category, res.Failure.Message)
//	}
//
// # Cancellation
//
// Cancellation is cooperative. Run checks ctx before every attempt and
// while waiting out a backoff; a fetch that has already started is never
// interrupted.
//
// # Retry Bound
//
// A job whose current category allows k retries makes at most k+1
// attempts. Stepping down from the lowest quality tier is treated as a
// terminal failure.
package download
