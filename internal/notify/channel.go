package notify

import "sync"

// ChannelSubscriber delivers events to a buffered channel for in-process
// consumers such as the CLI and the TUI.
//
// Send never blocks: when the channel is full the event is skipped for this
// subscriber only.
type ChannelSubscriber struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewChannelSubscriber creates a subscriber with the given channel capacity.
func NewChannelSubscriber(size int) *ChannelSubscriber {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &ChannelSubscriber{ch: make(chan Event, size)}
}

// Events returns the receive side of the subscriber. It is closed by Close.
func (c *ChannelSubscriber) Events() <-chan Event {
	return c.ch
}

// Send implements Subscriber.
func (c *ChannelSubscriber) Send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSubscriberClosed
	}
	select {
	case c.ch <- ev:
	default:
	}
	return nil
}

// Close closes the channel. Later sends return ErrSubscriberClosed.
func (c *ChannelSubscriber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
