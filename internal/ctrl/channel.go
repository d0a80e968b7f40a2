package ctrl

import "sync"

// Channel is the server-side handle to a worker connection. The router
// queues outbound messages on it without blocking; a writer goroutine
// owned by the transport drains Out until the channel is closed.
type Channel struct {
	out       chan any
	closeOnce sync.Once
	terminate func()
}

// NewChannel returns a channel with the given outbound buffer.
// terminate force-closes the underlying connection; the transport's
// death signal then re-enters the router as ChannelTerminatedEvent.
func NewChannel(buf int, terminate func()) *Channel {
	if buf <= 0 {
		buf = 32
	}
	return &Channel{out: make(chan any, buf), terminate: terminate}
}

// TrySend queues msg without blocking. False means the buffer is full;
// the worker is not keeping up with its control stream.
func (c *Channel) TrySend(msg any) bool {
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

// Out is the outbound message stream drained by the transport writer.
func (c *Channel) Out() <-chan any {
	return c.out
}

// Close ends the outbound stream. Idempotent. Only the router calls
// this, after the worker has been removed from the registry.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.out) })
}

// Terminate force-closes the underlying connection.
func (c *Channel) Terminate() {
	if c.terminate != nil {
		c.terminate()
	}
}
