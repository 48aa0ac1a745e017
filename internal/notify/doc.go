// Package notify delivers job status events to subscribers.
//
// Subscribers register either for one job or globally. Publishing is
// best-effort: the notifier buffers a bounded number of events and drops
// the oldest when the buffer is full, so a slow subscriber never stalls a
// download. A subscriber whose Send fails is removed.
//
//	n := notify.New(0, logger)
//	go n.Run(ctx)
//
//	sub := notify.NewChannelSubscriber(64)
//	h := n.Subscribe(jobID, sub)
//	defer n.Unsubscribe(h)
//
//	for ev := range sub.Events() {
//	    fmt.Println(ev.Status, ev.Progress)
//	}
package notify
