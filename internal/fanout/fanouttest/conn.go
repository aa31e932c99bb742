// Package fanouttest provides an in-memory fanout.Conn for tests.
package fanouttest

import (
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DoyleJ11/lobby-server/internal/fanout"
)

// Message is a decoded outbound payload.
type Message map[string]any

func (m Message) Type() string {
	s, _ := m["type"].(string)
	return s
}

// Conn records every payload it is sent.
type Conn struct {
	out    chan []byte
	closed atomic.Bool
	fail   atomic.Bool
}

func NewConn() *Conn {
	return &Conn{out: make(chan []byte, 256)}
}

func (c *Conn) Send(payload []byte) error {
	if c.closed.Load() {
		return fanout.ErrClosed
	}
	if c.fail.Load() {
		return fanout.ErrBackpressure
	}
	select {
	case c.out <- payload:
		return nil
	default:
		return fanout.ErrBackpressure
	}
}

func (c *Conn) Open() bool { return !c.closed.Load() }

func (c *Conn) Close() { c.closed.Store(true) }

// FailSends makes every later Send fail while the conn still reports open.
func (c *Conn) FailSends() { c.fail.Store(true) }

// Next waits for the next payload and decodes it.
func (c *Conn) Next(t *testing.T, within time.Duration) Message {
	t.Helper()
	select {
	case p := <-c.out:
		var m Message
		if err := json.Unmarshal(p, &m); err != nil {
			t.Fatalf("bad payload %q: %v", p, err)
		}
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return nil // unreachable
	}
}

// Expect reads the next payload and fails unless it has the given type.
func (c *Conn) Expect(t *testing.T, msgType string) Message {
	t.Helper()
	m := c.Next(t, time.Second)
	if m.Type() != msgType {
		t.Fatalf("want %q, got %v", msgType, m)
	}
	return m
}

// ExpectNone fails if anything arrives within d.
func (c *Conn) ExpectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case p := <-c.out:
		t.Fatalf("expected no message within %v, got %s", d, p)
	case <-time.After(d):
	}
}
