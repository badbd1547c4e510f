// Package client implements the chat client engine: a TCP connection with
// a background receive loop and heartbeat ticker, surfacing server traffic
// as events. The interactive front end lives in cmd/client.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/0xkonsti/chat-go/pkg/protocol"
)

// DefaultHeartbeatInterval is how often the client reports liveness.
const DefaultHeartbeatInterval = 30 * time.Second

var ErrClosed = errors.New("client: connection closed")

// Event is one unit of server traffic surfaced to the front end.
type Event struct {
	Kind protocol.Kind
	Text []string // decoded text fields, in wire order
}

// Client is a connection to a chat server. Safe for concurrent use: writes
// are serialized by a mutex, and all reads happen on the internal receive
// loop.
type Client struct {
	conn net.Conn
	log  *slog.Logger

	wmu sync.Mutex // guards writes to conn

	events chan Event

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Dial connects to a chat server and starts the receive and heartbeat
// loops.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:   conn,
		log:    slog.Default().With("component", "client"),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go c.receiveLoop()
	go c.heartbeatLoop(DefaultHeartbeatInterval)
	return c, nil
}

// Events returns the stream of server traffic. The channel closes when the
// connection does.
func (c *Client) Events() <-chan Event { return c.events }

// Done returns a channel closed when the connection shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Register creates a new account and logs in as it.
func (c *Client) Register(username, password string) error {
	return c.send(protocol.AuthCreate(username, password))
}

// Login authenticates as an existing user.
func (c *Client) Login(username, password string) error {
	return c.send(protocol.Auth(username, password))
}

// Send routes a direct message to another user.
func (c *Client) Send(recipient, body string) error {
	return c.send(protocol.DirectMessageSend(recipient, body))
}

// RequestDebugLog asks the server to dump its state to its own log.
// Admin only.
func (c *Client) RequestDebugLog() error {
	return c.send(protocol.DebugLogRequest())
}

// RequestShutdown asks the server to shut down after a grace period.
// Admin only.
func (c *Client) RequestShutdown(seconds uint64) error {
	return c.send(protocol.Shutdown(seconds))
}

// Disconnect tells the server we are leaving, then closes the connection.
func (c *Client) Disconnect() error {
	err := c.send(protocol.Disconnect())
	c.Close()
	return err
}

// Close tears the connection down. Idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.Close()
}

func (c *Client) send(m *protocol.Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := protocol.Write(c.conn, m); err != nil {
		return fmt.Errorf("client: send %v: %w", m.Kind, err)
	}
	return nil
}

// receiveLoop decodes frames off the wire and forwards them as events
// until the connection closes or the server says Disconnect.
func (c *Client) receiveLoop() {
	defer c.Close()
	defer close(c.events)

	br := bufio.NewReader(c.conn)
	for {
		if err := protocol.AwaitFrameStart(br); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.log.Debug("receive stopped", "error", err)
			}
			return
		}
		msg, err := protocol.Decode(br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, net.ErrClosed) {
				c.log.Warn("frame rejected, closing connection", "error", err)
			}
			return
		}

		switch msg.Kind {
		case protocol.KindHeartbeat:
			// Server liveness probe, not user-visible.
			continue
		case protocol.KindDisconnect:
			c.emit(msg)
			return
		default:
			c.emit(msg)
		}
	}
}

func (c *Client) emit(msg *protocol.Message) {
	text := make([]string, len(msg.Fields))
	for i := range msg.Fields {
		text[i] = msg.Text(i)
	}
	select {
	case c.events <- Event{Kind: msg.Kind, Text: text}:
	default:
		c.log.Warn("event dropped, consumer too slow", "kind", msg.Kind)
	}
}

func (c *Client) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case t := <-ticker.C:
			if err := c.send(protocol.Heartbeat(t)); err != nil {
				return
			}
		}
	}
}
