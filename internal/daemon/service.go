package daemon

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oro-os/oro-link-x86/internal/auth"
	"github.com/oro-os/oro-link-x86/internal/clock"
	"github.com/oro-os/oro-link-x86/internal/observability"
	"github.com/oro-os/oro-link-x86/internal/protocol/channel"
	"github.com/oro-os/oro-link-x86/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrListener marks failures of the link listener itself. The process is
// expected to exit when Run returns one.
var ErrListener = errors.New("daemon: link listener failed")

// Connection failure classes used in logs and metrics.
const (
	FailureNegotiation = "negotiation"
	FailureRead        = "read"
	FailureWrite       = "write"
	FailureDecode      = "decode"
	FailureRejected    = "rejected"
	FailureOther       = "other"
)

// ServiceConfig configures the daemon endpoint.
type ServiceConfig struct {
	ListenAddr      string
	AdminListenAddr string
	Version         string
	Session         session.Config
	Plan            Plan
	Validator       auth.Validator
	Clock           clock.Clock
	Rand            io.Reader
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr: "0.0.0.0:1337",
		Version:    "dev",
		Session:    session.DefaultConfig(),
		Plan:       DefaultPlan(),
	}
}

// LinkStatus is a point-in-time view of one connection.
type LinkStatus struct {
	Remote      string       `json:"remote"`
	ConnectedAt time.Time    `json:"connected_at"`
	State       string       `json:"state"`
	UID         string       `json:"uid,omitempty"`
	Version     string       `json:"version,omitempty"`
	Session     *TestSession `json:"session,omitempty"`
}

type linkConn struct {
	remote      string
	connectedAt time.Time
	orch        *Orchestrator
}

// Service accepts link connections and runs one Orchestrator per connection.
type Service struct {
	cfg     ServiceConfig
	started time.Time

	connsMu sync.Mutex
	conns   map[net.Conn]*linkConn

	listening          atomic.Bool
	sessionClientCount atomic.Int64
}

func NewService() *Service {
	return NewServiceWithConfig(DefaultServiceConfig())
}

func NewServiceWithConfig(cfg ServiceConfig) *Service {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Rand == nil {
		cfg.Rand = crand.Reader
	}
	if cfg.Validator == nil {
		cfg.Validator = auth.AllowAll{}
	}
	cfg.Session = cfg.Session.WithDefaults()
	cfg.Plan = cfg.Plan.WithDefaults()
	return &Service{
		cfg:     cfg,
		started: time.Now(),
		conns:   make(map[net.Conn]*linkConn),
	}
}

// Run blocks until SIGINT/SIGTERM or a listener failure.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext listens on the configured address and serves links, plus the
// admin HTTP endpoint when configured, until ctx ends.
func (s *Service) RunContext(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListener, err)
	}
	log.Info().
		Str("addr", ln.Addr().String()).
		Str("version", s.cfg.Version).
		Msg("daemon.Service.Run listening for link connections")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(gctx, ln)
	})
	if addr := strings.TrimSpace(s.cfg.AdminListenAddr); addr != "" {
		g.Go(func() error {
			return s.serveAdmin(gctx, addr)
		})
	}
	return g.Wait()
}

// Serve accepts links on ln until ctx ends or Accept fails. Each connection
// runs in its own goroutine and a failure there never reaches Serve.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.listening.Store(true)
	defer s.listening.Store(false)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.closeAllConns()
			_ = ln.Close()
		case <-done:
		}
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("%w: accept: %w", ErrListener, err)
		}
		s.trackConn(conn)
		go s.handleConn(ctx, conn)
	}
}

func (s *Service) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	defer s.untrackConn(conn)
	release := observability.TrackConnection()
	defer release()

	remote := conn.RemoteAddr().String()
	logger := log.With().Str("remote", remote).Logger()
	active := s.sessionClientCount.Add(1)
	logger.Debug().Int64("active_clients", active).Msg("daemon.Service.handleConn incoming link connection")
	defer func() {
		remaining := s.sessionClientCount.Add(-1)
		logger.Debug().Int64("active_clients", remaining).Msg("daemon.Service.handleConn link connection closed")
	}()

	start := time.Now()
	tx, rx, err := channel.NegotiateConn(conn, s.cfg.Rand, channel.Responder, s.cfg.Session.HandshakeTimeout)
	observability.RecordNegotiation(observability.RoleDaemon, time.Since(start), err == nil)
	if err != nil {
		s.connectionFailed(remote, err)
		return
	}
	logger.Debug().Msg("daemon.Service.handleConn negotiated; beginning communications")

	orch := NewOrchestrator(Options{
		Plan:      s.cfg.Plan,
		Clock:     s.cfg.Clock,
		Rand:      s.cfg.Rand,
		Validator: s.cfg.Validator,
		Remote:    remote,
	})
	s.attach(conn, orch)

	err = orch.Run(ctx, tx, rx)
	if ctx.Err() != nil {
		return
	}
	s.connectionFailed(remote, err)
}

func (s *Service) connectionFailed(remote string, err error) {
	kind := classify(err)
	observability.RecordConnectionError(kind)
	event := log.Error()
	switch {
	case errors.Is(err, io.EOF):
		event = log.Info()
	case kind == FailureRejected:
		event = log.Warn()
	}
	event.
		Str("remote", remote).
		Str("kind", kind).
		Err(err).
		Msg("daemon.Service.handleConn link connection ended")
}

// classify maps a connection error onto one failure class. Negotiation is
// checked first since negotiation errors also carry a read or write class.
func classify(err error) string {
	switch {
	case err == nil:
		return FailureOther
	case errors.Is(err, ErrLinkRejected):
		return FailureRejected
	case errors.Is(err, channel.ErrNegotiation):
		return FailureNegotiation
	case errors.Is(err, channel.ErrDecode):
		return FailureDecode
	case errors.Is(err, channel.ErrWrite):
		return FailureWrite
	case errors.Is(err, channel.ErrRead):
		return FailureRead
	default:
		return FailureOther
	}
}

// Links snapshots every open connection.
func (s *Service) Links() []LinkStatus {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	out := make([]LinkStatus, 0, len(s.conns))
	for _, lc := range s.conns {
		st := LinkStatus{Remote: lc.remote, ConnectedAt: lc.connectedAt, State: "negotiating"}
		if lc.orch != nil {
			st.State = lc.orch.State().String()
			if info, ok := lc.orch.Link(); ok {
				st.UID = info.UIDHex()
				st.Version = info.Version
			}
			if sess, ok := lc.orch.Session(); ok {
				st.Session = &sess
			}
		}
		out = append(out, st)
	}
	return out
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.conns[conn] = &linkConn{remote: conn.RemoteAddr().String(), connectedAt: time.Now()}
}

func (s *Service) attach(conn net.Conn, orch *Orchestrator) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if lc, ok := s.conns[conn]; ok {
		lc.orch = orch
	}
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
