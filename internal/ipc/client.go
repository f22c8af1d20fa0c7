package ipc

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"fingermon/internal/stats"
)

// Client talks to a running daemon over its control socket.
type Client struct {
	conn    net.Conn
	timeout time.Duration

	mu     sync.Mutex
	nextID atomic.Uint32
}

// Connect dials the control socket.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Request sends one message and waits for the matching reply.
// Snapshot pushes arriving out of band are skipped.
func (c *Client) Request(msgType MessageType, payload []byte) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID.Add(1)
	msg := NewMessage(msgType, id, payload)

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := msg.Write(c.conn); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	for {
		c.conn.SetReadDeadline(deadline)
		resp, err := ReadMessage(c.conn)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.Header.Type == MsgSnapshot {
			continue
		}
		if resp.Header.RequestID != id {
			continue
		}
		if resp.Header.Type == MsgError {
			var e ErrorResponse
			if err := Decode(resp.Payload, &e); err != nil {
				return nil, fmt.Errorf("daemon error (code unknown)")
			}
			return nil, fmt.Errorf("daemon error: %s", e.Message)
		}
		return resp, nil
	}
}

// Ping checks the daemon is responsive.
func (c *Client) Ping() error {
	resp, err := c.Request(MsgPing, nil)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected reply type 0x%04x", resp.Header.Type)
	}
	return nil
}

// Status fetches daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.Request(MsgStatusRequest, nil)
	if err != nil {
		return nil, err
	}
	var st StatusResponse
	if err := Decode(resp.Payload, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

// Stats fetches the current statistics snapshot.
func (c *Client) Stats() (*stats.Snapshot, error) {
	resp, err := c.Request(MsgStatsRequest, nil)
	if err != nil {
		return nil, err
	}
	var sr StatsResponse
	if err := Decode(resp.Payload, &sr); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &sr.Snapshot, nil
}

// History fetches per-day records for the last n days. n <= 0 asks
// for everything the daemon keeps.
func (c *Client) History(days int) (*HistoryResponse, error) {
	payload, err := Encode(&HistoryRequest{Days: days})
	if err != nil {
		return nil, err
	}
	resp, err := c.Request(MsgHistoryRequest, payload)
	if err != nil {
		return nil, err
	}
	var hr HistoryResponse
	if err := Decode(resp.Payload, &hr); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return &hr, nil
}

// Shutdown asks the daemon to exit.
func (c *Client) Shutdown() error {
	resp, err := c.Request(MsgShutdown, nil)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgShutdownAck {
		return fmt.Errorf("unexpected reply type 0x%04x", resp.Header.Type)
	}
	return nil
}

// Subscribe registers for snapshot pushes and invokes fn for each
// one until the connection drops or fn returns false.
func (c *Client) Subscribe(fn func(stats.Snapshot) bool) error {
	if _, err := c.Request(MsgSubscribe, nil); err != nil {
		return err
	}

	for {
		c.conn.SetReadDeadline(time.Time{})
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if msg.Header.Type != MsgSnapshot {
			continue
		}
		var sr StatsResponse
		if err := Decode(msg.Payload, &sr); err != nil {
			continue
		}
		if !fn(sr.Snapshot) {
			return nil
		}
	}
}
