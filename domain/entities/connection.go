package entities

import (
	"time"

	"github.com/google/uuid"
)

// DropReason explains why an audio frame never reached the upstream agent
type DropReason string

const (
	DropPrerollOverflow DropReason = "preroll_overflow"
	DropNotReady        DropReason = "not_ready"
	DropGreetingGate    DropReason = "greeting_gate"
	DropClosed          DropReason = "closed"
)

// ConnectionStatus represents the status of a bridged connection
type ConnectionStatus string

const (
	ConnectionStatusActive ConnectionStatus = "active"
	ConnectionStatusClosed ConnectionStatus = "closed"
	ConnectionStatusFailed ConnectionStatus = "failed"
)

// Connection represents one client socket paired with one upstream agent socket
type Connection struct {
	ID        string           `json:"id"`
	VoiceID   string           `json:"voice_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	ClosedAt  *time.Time       `json:"closed_at,omitempty"`
	Status    ConnectionStatus `json:"status"`
	// Phase mirrors the upstream session state
	Phase string `json:"phase"`

	ClientBytesIn  int64                `json:"client_bytes_in"`
	BytesToClient  int64                `json:"bytes_to_client"`
	FramesUpstream int64                `json:"frames_upstream"`
	FramesDropped  map[DropReason]int64 `json:"frames_dropped"`
}

// NewConnection creates a connection with a fresh identifier
func NewConnection() *Connection {
	return &Connection{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now(),
		Status:        ConnectionStatusActive,
		FramesDropped: make(map[DropReason]int64),
	}
}

// RecordDrop counts n frames dropped for reason
func (c *Connection) RecordDrop(reason DropReason, n int) {
	if n <= 0 {
		return
	}
	c.FramesDropped[reason] += int64(n)
}

// TotalDropped sums dropped frames across all reasons
func (c Connection) TotalDropped() int64 {
	var total int64
	for _, n := range c.FramesDropped {
		total += n
	}
	return total
}

// Close marks the connection as ended. Only the first call has an effect.
func (c *Connection) Close(failed bool) {
	if c.ClosedAt != nil {
		return
	}
	now := time.Now()
	c.ClosedAt = &now
	if failed {
		c.Status = ConnectionStatusFailed
	} else {
		c.Status = ConnectionStatusClosed
	}
}

// Duration returns how long the connection has been (or was) alive
func (c Connection) Duration() time.Duration {
	if c.ClosedAt != nil {
		return c.ClosedAt.Sub(c.CreatedAt)
	}
	return time.Since(c.CreatedAt)
}

// Snapshot returns a copy that is safe to hand to another goroutine
func (c *Connection) Snapshot() Connection {
	cp := *c
	cp.FramesDropped = make(map[DropReason]int64, len(c.FramesDropped))
	for k, v := range c.FramesDropped {
		cp.FramesDropped[k] = v
	}
	if c.ClosedAt != nil {
		closed := *c.ClosedAt
		cp.ClosedAt = &closed
	}
	return cp
}
