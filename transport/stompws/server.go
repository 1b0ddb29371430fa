// Package stompws serves STOMP 1.2 frames over websocket connections.
//
// Each websocket text message carries one frame. CONNECT and SEND frames are
// checked by the auth gate, SEND frames addressed to /pub/... are handed to
// the command router, and SUBSCRIBE registers the connection with the Hub so
// channel traffic reaches it as MESSAGE frames.
package stompws

import (
	"fmt"
	"net/http"

	"github.com/coregx/chatrelay"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	defaultRateLimit = rate.Limit(20)
	defaultBurst     = 40
	defaultSendQueue = 256
)

// Server upgrades HTTP requests to STOMP-over-websocket sessions.
type Server struct {
	hub      *Hub
	gate     *chatrelay.AuthGate
	router   *chatrelay.Router
	logger   chatrelay.Logger
	upgrader websocket.Upgrader

	rateLimit rate.Limit
	burst     int
	sendQueue int
}

// Option configures a Server.
type Option func(*Server) error

// NewServer creates a server with the provided options.
//
// Required options:
//   - WithHub: local subscription registry
//   - WithGate: credential checks for CONNECT and SEND
//   - WithRouter: command dispatch
//   - WithLogger: logger instance
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		rateLimit: defaultRateLimit,
		burst:     defaultBurst,
		sendQueue: defaultSendQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    []string{"v12.stomp", "v11.stomp", "v10.stomp"},
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, chatrelay.NewErrorWithCause(chatrelay.ErrCodeConfiguration, "failed to apply server option", err)
		}
	}

	if s.hub == nil {
		return nil, chatrelay.NewError(chatrelay.ErrCodeConfiguration, "Hub is required (use WithHub)")
	}
	if s.gate == nil {
		return nil, chatrelay.NewError(chatrelay.ErrCodeConfiguration, "AuthGate is required (use WithGate)")
	}
	if s.router == nil {
		return nil, chatrelay.NewError(chatrelay.ErrCodeConfiguration, "Router is required (use WithRouter)")
	}
	if s.logger == nil {
		return nil, chatrelay.NewError(chatrelay.ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return s, nil
}

// WithHub sets the hub connections subscribe through.
func WithHub(hub *Hub) Option {
	return func(s *Server) error {
		if hub == nil {
			return fmt.Errorf("hub cannot be nil")
		}
		s.hub = hub
		return nil
	}
}

// WithGate sets the auth gate.
func WithGate(gate *chatrelay.AuthGate) Option {
	return func(s *Server) error {
		if gate == nil {
			return fmt.Errorf("gate cannot be nil")
		}
		s.gate = gate
		return nil
	}
}

// WithRouter sets the command router.
func WithRouter(router *chatrelay.Router) Option {
	return func(s *Server) error {
		if router == nil {
			return fmt.Errorf("router cannot be nil")
		}
		s.router = router
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger chatrelay.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithRateLimit limits SEND frames per connection (default 20/s, burst 40).
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(s *Server) error {
		if limit <= 0 || burst <= 0 {
			return fmt.Errorf("rate limit and burst must be positive")
		}
		s.rateLimit = limit
		s.burst = burst
		return nil
	}
}

// WithSendQueue sets how many outbound frames may wait per connection
// before it is dropped as a slow consumer (default 256).
func WithSendQueue(size int) Option {
	return func(s *Server) error {
		if size <= 0 {
			return fmt.Errorf("send queue size must be positive")
		}
		s.sendQueue = size
		return nil
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Websocket upgrade failed: remote=%s, error=%v", r.RemoteAddr, err)
		return
	}

	c := newConn(ws, s)
	go c.writePump()
	c.readPump(r.Context())
}
