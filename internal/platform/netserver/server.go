package netserver

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler serves one accepted connection. ServeConn owns conn until it
// returns; the server closes conn afterwards. ctx is cancelled when the server
// stops.
type Handler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn)

func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) { f(ctx, conn) }

// Observer is notified as connections open and close.
type Observer interface {
	ConnOpened(server string)
	ConnClosed(server string, elapsed time.Duration)
}

// Option configures a Server.
type Option func(*Server)

// WithObserver reports connection lifecycle events to o.
func WithObserver(o Observer) Option {
	return func(s *Server) { s.observer = o }
}

// Server accepts TCP connections and hands each to its Handler on its own
// goroutine.
type Server struct {
	name     string
	addr     string
	handler  Handler
	logger   zerolog.Logger
	observer Observer

	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server named name that will listen on addr.
func New(name, addr string, handler Handler, logger zerolog.Logger, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		name:    name,
		addr:    addr,
		handler: handler,
		logger:  logger.With().Str("server", name).Logger(),
		conns:   make(map[net.Conn]struct{}),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the server's name as used in logs and metrics.
func (s *Server) Name() string { return s.name }

// Start begins listening for connections. It is non-blocking: the accept loop
// runs in a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%s: failed to listen on %s: %w", s.name, s.addr, err)
	}
	s.listener = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	return nil
}

// Stop closes the listener and every tracked connection, then waits for the
// accept loop and all handlers to return. It is safe to call more than once.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		s.cancel()

		if s.listener != nil {
			err = s.listener.Close()
		}

		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
		s.logger.Info().Msg("stopped")
	})
	return err
}

// Addr returns the listener address, which differs from the configured one
// when the server was started on port 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ActiveConns returns the number of connections currently being served.
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				s.logger.Warn().Err(err).Msg("accept timeout")
				continue
			}
			s.logger.Error().Err(err).Msg("accept failed")
			return
		}

		if !s.trackConn(conn, true) {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
		}()
	}
}

func (s *Server) serve(conn net.Conn) {
	start := time.Now()
	if s.observer != nil {
		s.observer.ConnOpened(s.name)
	}
	log := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("connection opened")

	defer func() {
		if r := recover(); r != nil {
			var stack [4096]byte
			n := runtime.Stack(stack[:], false)
			log.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(stack[:n])).
				Msg("panic recovered")
		}
		conn.Close()
		s.trackConn(conn, false)
		if s.observer != nil {
			s.observer.ConnClosed(s.name, time.Since(start))
		}
		log.Debug().Dur("duration", time.Since(start)).Msg("connection closed")
	}()

	s.handler.ServeConn(s.ctx, conn)
}

// trackConn adds or removes conn from the tracked set. Adding fails once the
// server is stopping.
func (s *Server) trackConn(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !add {
		delete(s.conns, conn)
		return true
	}
	select {
	case <-s.done:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}
