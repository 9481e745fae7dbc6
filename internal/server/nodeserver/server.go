package nodeserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/dirmesh-go/internal/core/service"
	"github.com/yndnr/dirmesh-go/internal/server/clusterserver"
	"github.com/yndnr/dirmesh-go/internal/telemetry/metric"
	"github.com/yndnr/dirmesh-go/internal/wire"
)

// Config holds the node server configuration.
type Config struct {
	// PlainAddress is the address of the plaintext listener.
	PlainAddress string
	// SecureAddress is the address of the TLS listener. Empty disables it.
	SecureAddress string
	// TLSConfig is required by the TLS listener.
	TLSConfig *tls.Config
	// ReadTimeout bounds the wait for the command of a connection
	// (default: 30s). Persistent connections disable it.
	ReadTimeout time.Duration
	// WriteTimeout bounds every write to a client (default: 30s).
	WriteTimeout time.Duration
	// ConnectionInterval is the minimum time between two connections from
	// one address (default: 1s). Zero disables admission control.
	ConnectionInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PlainAddress:       "0.0.0.0:3780",
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       30 * time.Second,
		ConnectionInterval: time.Second,
	}
}

// Deps are the services the server dispatches to.
type Deps struct {
	Resources     *service.ResourceService
	Subscriptions *service.SubscriptionService

	// Plain is the federation of the plaintext listener.
	Plain *clusterserver.Federation
	// Secure is the federation of the TLS listener. Nil with TLS disabled.
	Secure *clusterserver.Federation

	Metrics *metric.Registry
	Logger  *slog.Logger
}

// listener binds a network listener to its federation.
type listener struct {
	name string
	ln   net.Listener
	fed  *clusterserver.Federation
}

// Server accepts client and peer connections and runs one command per
// connection, or a persistent subscription session.
type Server struct {
	cfg       *Config
	deps      Deps
	admission *admission
	logger    *slog.Logger

	mu        sync.Mutex
	listeners []*listener
	conns     map[*wire.Conn]struct{}

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a node server.
func New(cfg *Config, deps Deps) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		deps:      deps,
		admission: newAdmission(cfg.ConnectionInterval),
		logger:    deps.Logger,
		conns:     make(map[*wire.Conn]struct{}),
	}
}

// Start opens the listeners and serves them in the background until
// Shutdown.
func (s *Server) Start(ctx context.Context) error {
	plainLn, err := net.Listen("tcp", s.cfg.PlainAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.PlainAddress, err)
	}
	lns := []*listener{{name: clusterserver.FederationPlain, ln: plainLn, fed: s.deps.Plain}}

	if s.cfg.SecureAddress != "" {
		if s.cfg.TLSConfig == nil {
			plainLn.Close()
			return errors.New("tls config is required for the secure listener")
		}
		tlsLn, err := tls.Listen("tcp", s.cfg.SecureAddress, s.cfg.TLSConfig)
		if err != nil {
			plainLn.Close()
			return fmt.Errorf("listen %s: %w", s.cfg.SecureAddress, err)
		}
		lns = append(lns, &listener{name: clusterserver.FederationSecure, ln: tlsLn, fed: s.deps.Secure})
	}

	s.mu.Lock()
	s.listeners = lns
	s.mu.Unlock()
	s.running.Store(true)

	for _, l := range lns {
		s.logger.Info("node listener started", "listener", l.name, "address", l.ln.Addr().String())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.acceptLoop(ctx, l); err != nil && s.running.Load() {
				s.logger.Error("accept loop failed", "listener", l.name, "error", err)
			}
		}()
	}
	return nil
}

// RunAdmission prunes the admission table until ctx is cancelled.
func (s *Server) RunAdmission(ctx context.Context) error {
	return s.admission.Run(ctx)
}

// Addr returns the address of the named listener, or nil.
func (s *Server) Addr(name string) net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.listeners {
		if l.name == name {
			return l.ln.Addr()
		}
	}
	return nil
}

// Shutdown closes the listeners and every open connection, then waits for
// the connection goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	s.mu.Lock()
	for _, l := range s.listeners {
		if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) && firstErr == nil {
			firstErr = err
		}
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, l *listener) error {
	for {
		nc, err := l.ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		if !s.admission.Allow(remoteIP(nc.RemoteAddr()), time.Now()) {
			s.deps.Metrics.RecordConnection(l.name, "rejected")
			s.logger.Debug("connection rejected by admission control", "listener", l.name, "remote", nc.RemoteAddr().String())
			nc.Close()
			continue
		}
		s.deps.Metrics.RecordConnection(l.name, "accepted")

		c := wire.NewConn(nc)
		if !s.track(c) {
			c.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.deps.Metrics.ConnectionOpened(l.name)
			defer s.deps.Metrics.ConnectionClosed(l.name)
			s.serveConn(ctx, l, c)
		}()
	}
}

func (s *Server) track(c *wire.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *wire.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.Close()
}

func remoteIP(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
