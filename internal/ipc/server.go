package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"fingermon/internal/logging"
	"fingermon/internal/stats"
)

// Handler processes application messages the server does not consume
// itself (ping and subscription management are handled internally).
type Handler interface {
	HandleMessage(ctx context.Context, conn *Conn, msg *Message) (*Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn *Conn, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, conn *Conn, msg *Message) (*Message, error) {
	return f(ctx, conn, msg)
}

// Conn is one connected client.
type Conn struct {
	ID          string
	conn        net.Conn
	ConnectedAt time.Time

	writeMu sync.Mutex
}

// ServerConfig configures the control socket server.
type ServerConfig struct {
	SocketPath     string
	Version        string
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Server owns the Unix socket and connected clients, and pushes
// statistics snapshots to subscribers.
type Server struct {
	mu          sync.RWMutex
	listener    net.Listener
	cfg         ServerConfig
	handler     Handler
	conns       map[string]*Conn
	subscribers map[string]struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	nextID    atomic.Uint32
	snapshots chan stats.Snapshot
}

// NewServer creates a server; Start must be called before use.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:         cfg,
		handler:     handler,
		conns:       make(map[string]*Conn),
		subscribers: make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
		snapshots:   make(chan stats.Snapshot, 16),
	}
}

// Start binds the socket and begins accepting connections.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.running.Store(true)

	s.wg.Add(2)
	go s.broadcastLoop()
	go s.acceptLoop()

	logging.Info("control socket listening", "path", s.cfg.SocketPath)
	return nil
}

// Stop closes the socket and all connections.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, c := range s.conns {
		c.conn.Close()
	}
	close(s.snapshots)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logging.Warn("control socket shutdown timed out")
	}

	os.Remove(s.cfg.SocketPath)
	return nil
}

// SocketPath returns the bound socket path.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}

// ConnCount returns the number of connected clients.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Publish queues a snapshot for delivery to subscribers. It never
// blocks; when the queue is full the snapshot is skipped.
func (s *Server) Publish(snap stats.Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running.Load() {
		return
	}
	select {
	case s.snapshots <- snap:
	default:
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
		}

		s.mu.Lock()
		if len(s.conns) >= s.cfg.MaxConnections {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		c := &Conn{
			ID:          fmt.Sprintf("conn-%d", s.nextID.Add(1)),
			conn:        conn,
			ConnectedAt: time.Now(),
		}
		s.conns[c.ID] = c
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(c)
	}
}

func (s *Server) handleConn(c *Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c.ID)
		delete(s.subscribers, c.ID)
		s.mu.Unlock()
		c.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		msg, err := ReadMessage(c.conn)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// Idle subscribers stay connected; everyone else ages out.
				s.mu.RLock()
				_, subscribed := s.subscribers[c.ID]
				s.mu.RUnlock()
				if subscribed {
					continue
				}
			}
			return
		}

		resp, err := s.processMessage(c, msg)
		if err != nil {
			resp = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if resp != nil {
			if err := s.send(c, resp); err != nil {
				return
			}
		}
	}
}

func (s *Server) processMessage(c *Conn, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil

	case MsgSubscribe:
		s.mu.Lock()
		s.subscribers[c.ID] = struct{}{}
		s.mu.Unlock()
		return NewMessage(MsgSubscribeAck, msg.Header.RequestID, nil), nil

	case MsgUnsubscribe:
		s.mu.Lock()
		delete(s.subscribers, c.ID)
		s.mu.Unlock()
		return NewMessage(MsgSubscribeAck, msg.Header.RequestID, nil), nil

	default:
		if s.handler == nil {
			return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "no handler"), nil
		}
		return s.handler.HandleMessage(s.ctx, c, msg)
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for snap := range s.snapshots {
		payload, err := Encode(&StatsResponse{Snapshot: snap})
		if err != nil {
			continue
		}

		s.mu.RLock()
		targets := make([]*Conn, 0, len(s.subscribers))
		for id := range s.subscribers {
			if c, ok := s.conns[id]; ok {
				targets = append(targets, c)
			}
		}
		s.mu.RUnlock()

		for _, c := range targets {
			msg := NewMessage(MsgSnapshot, s.nextID.Add(1), payload)
			if err := s.send(c, msg); err != nil {
				c.conn.Close()
			}
		}
	}
}

func (s *Server) send(c *Conn, msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return msg.Write(c.conn)
}
