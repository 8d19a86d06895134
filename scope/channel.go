package scope

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Channel: live handle bound into a scope
// Channels connect concurrent tasks within one process. They are handles
// onto running machinery and can never cross a serialization boundary.
// ---------------------------------------------------------------------------

// Channel wraps a Go channel for use as a scope value.
type Channel struct {
	ch     chan any
	closed atomic.Bool
	mu     sync.Mutex // protects close operation
}

// NewChannel creates a channel handle. A buffered size of 0 makes it
// unbuffered.
func NewChannel(buffered int) *Channel {
	c := &Channel{}
	if buffered > 0 {
		c.ch = make(chan any, buffered)
	} else {
		c.ch = make(chan any)
	}
	return c
}

// Send delivers a value, blocking until received. Returns false if the
// channel is already closed.
func (c *Channel) Send(v any) bool {
	if c.closed.Load() {
		return false
	}
	c.ch <- v
	return true
}

// TrySend attempts a non-blocking send, reporting whether the value was
// delivered.
func (c *Channel) TrySend(v any) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

// Receive blocks for the next value. ok is false once the channel is closed
// and drained.
func (c *Channel) Receive() (v any, ok bool) {
	v, ok = <-c.ch
	return v, ok
}

// TryReceive attempts a non-blocking receive.
func (c *Channel) TryReceive() (v any, ok bool) {
	select {
	case v, ok = <-c.ch:
		return v, ok
	default:
		return nil, false
	}
}

// Close closes the channel. Closing twice is harmless.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed.Load() {
		c.closed.Store(true)
		close(c.ch)
	}
}

// IsClosed reports whether the channel has been closed.
func (c *Channel) IsClosed() bool {
	return c.closed.Load()
}

// errChannelEncode makes every serialization attempt on a channel handle
// fail. Without it the codec would see a struct with no exported fields
// and emit an empty map.
var errChannelEncode = errors.New("scope: channel handles cannot be encoded")

// MarshalCBOR refuses serialization; a channel is only meaningful in the
// process that created it.
func (c *Channel) MarshalCBOR() ([]byte, error) {
	return nil, errChannelEncode
}

// Reader returns the receive-only view of the channel.
func (c *Channel) Reader() *ReadPort {
	return &ReadPort{c: c}
}

// Writer returns the send-only view of the channel.
func (c *Channel) Writer() *WritePort {
	return &WritePort{c: c}
}

// ReadPort is the receive-only view of a Channel.
type ReadPort struct {
	c *Channel
}

// Receive blocks for the next value from the underlying channel.
func (p *ReadPort) Receive() (any, bool) {
	return p.c.Receive()
}

// TryReceive attempts a non-blocking receive.
func (p *ReadPort) TryReceive() (any, bool) {
	return p.c.TryReceive()
}

// MarshalCBOR refuses serialization, as on Channel.
func (p *ReadPort) MarshalCBOR() ([]byte, error) {
	return nil, errChannelEncode
}

// WritePort is the send-only view of a Channel.
type WritePort struct {
	c *Channel
}

// Send delivers a value through the underlying channel.
func (p *WritePort) Send(v any) bool {
	return p.c.Send(v)
}

// TrySend attempts a non-blocking send.
func (p *WritePort) TrySend(v any) bool {
	return p.c.TrySend(v)
}

// MarshalCBOR refuses serialization, as on Channel.
func (p *WritePort) MarshalCBOR() ([]byte, error) {
	return nil, errChannelEncode
}

// IsChannelValue reports whether a value is a live channel handle in any of
// its three forms.
func IsChannelValue(v any) bool {
	switch v.(type) {
	case *Channel, *ReadPort, *WritePort:
		return true
	}
	return false
}
