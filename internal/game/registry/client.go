// Package registry tracks the single live outbound channel for each
// connected user.
package registry

import (
	"fmt"
	"sync"
)

// Client routes event payloads to a bounded Go channel, bridging the
// coordinator to a websocket write pump.
type Client struct {
	userID  int64
	events  chan []byte
	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewClient creates a Client for the given user.
//
// Precondition: userID must be non-zero.
// Postcondition: Returns a Client with an open events channel.
func NewClient(userID int64, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Client{
		userID: userID,
		events: make(chan []byte, bufferSize),
	}
}

// UserID returns the user this client delivers to.
func (c *Client) UserID() int64 {
	return c.userID
}

// Push enqueues data for delivery without blocking. A full buffer drops
// the payload so one stalled peer cannot stall the coordinator.
//
// Postcondition: Data is enqueued, or an error if the client is closed or full.
func (c *Client) Push(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client %d is closed", c.userID)
	}
	select {
	case c.events <- data:
		return nil
	default:
		c.dropped++
		return fmt.Errorf("client %d event buffer full", c.userID)
	}
}

// Events returns the read-only events channel. The write pump reads from
// this channel until it is closed.
func (c *Client) Events() <-chan []byte {
	return c.events
}

// Dropped returns the number of payloads discarded due to a full buffer.
func (c *Client) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close marks the client as closed and closes the events channel.
//
// Postcondition: The events channel is closed. Further Push calls return an error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

// IsClosed reports whether the client has been closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
