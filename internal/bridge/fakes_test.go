package bridge

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/intake-bridge/domain/entities"
	"github.com/satriahrh/intake-bridge/internal/agent"
)

type wireMsg struct {
	typ  int
	data []byte
	err  error
}

// fakeConn is an in-memory websocket peer usable as both ClientConn and agent.Conn.
type fakeConn struct {
	inbound   chan wireMsg
	writes    chan wireMsg
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	// failWrites makes every WriteMessage fail as if the peer vanished.
	failWrites atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan wireMsg, 64),
		writes:  make(chan wireMsg, 1024),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.inbound:
		if m.err != nil {
			return 0, nil, m.err
		}
		return m.typ, m.data, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.failWrites.Load() {
		return net.ErrClosed
	}
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.writes <- wireMsg{typ: messageType, data: append([]byte(nil), data...)}
	return nil
}

func (c *fakeConn) SetReadLimit(int64) {}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) SetPongHandler(func(appData string) error) {}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sendText(s string) {
	c.inbound <- wireMsg{typ: websocket.TextMessage, data: []byte(s)}
}

func (c *fakeConn) sendBinary(b []byte) {
	c.inbound <- wireMsg{typ: websocket.BinaryMessage, data: b}
}

func (c *fakeConn) breakWith(err error) {
	c.inbound <- wireMsg{err: err}
}

// next returns the next write matching typ, skipping pings.
func (c *fakeConn) next(t *testing.T, typ int) wireMsg {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-c.writes:
			if m.typ == typ {
				return m
			}
			if m.typ == websocket.PingMessage {
				continue
			}
			t.Fatalf("unexpected message type %d: %s", m.typ, m.data)
		case <-deadline:
			t.Fatalf("timed out waiting for message type %d", typ)
		}
	}
}

// nextJSON returns the next text message whose type is msgType, skipping others.
func (c *fakeConn) nextJSON(t *testing.T, msgType MessageType) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-c.writes:
			if m.typ != websocket.TextMessage {
				continue
			}
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(m.data, &decoded))
			if decoded["type"] == string(msgType) {
				return decoded
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q message", msgType)
			return nil
		}
	}
}

// drain returns every write queued so far.
func (c *fakeConn) drain() []wireMsg {
	var out []wireMsg
	for {
		select {
		case m := <-c.writes:
			out = append(out, m)
		default:
			return out
		}
	}
}

type fakeDialer struct {
	conn  *fakeConn
	err   error
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context) (agent.Conn, error) {
	d.dials.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	snapshots []entities.IntakeSnapshot
}

func (p *fakePublisher) PublishIntake(ctx context.Context, snapshot entities.IntakeSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []entities.IntakeSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entities.IntakeSnapshot(nil), p.snapshots...)
}
