// Package queue is the admission controller that bounds how many jobs run
// at once.
//
// Jobs beyond the limit wait in strict FIFO order. Each time a running job
// returns, its slot goes to the oldest waiting job and the remaining
// positions are recomputed before anyone can observe them.
//
//	q := queue.New(queue.Options{Limit: 3})
//	pos, err := q.Submit("ab12cd34", func(ctx context.Context) error {
//	    return work(ctx)
//	})
//	// pos == 0: running now; pos > 0: waiting at that position
//
// Cancellation is cooperative: a waiting job is simply removed, a running
// job has its context cancelled and is expected to stop at its next
// checkpoint.
package queue
