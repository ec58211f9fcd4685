package link

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oro-os/oro-link-x86/internal/clock"
	"github.com/oro-os/oro-link-x86/internal/observability"
	"github.com/oro-os/oro-link-x86/internal/protocol"
	"github.com/oro-os/oro-link-x86/internal/protocol/channel"
	"github.com/oro-os/oro-link-x86/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDaemonAddrRequired = errors.New("link: daemon address required")
	ErrUIDRequired        = errors.New("link: uid required")
	ErrHardwareRequired   = errors.New("link: hardware collaborator missing")
	ErrConnect            = errors.New("link: connect to daemon failed")
)

// Config is the link runtime policy.
type Config struct {
	DaemonAddr string
	UID        uuid.UUID
	Version    string
	Session    session.Config

	PowerSettle      time.Duration
	ResetSettle      time.Duration
	LinkPollInterval time.Duration
	MonitorHz        int
	HeartbeatOn      time.Duration
	HeartbeatOff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		DaemonAddr:       "127.0.0.1:1337",
		Version:          "dev",
		Session:          session.DefaultConfig(),
		PowerSettle:      3 * time.Second,
		ResetSettle:      500 * time.Millisecond,
		LinkPollInterval: time.Second,
		MonitorHz:        240,
		HeartbeatOn:      100 * time.Millisecond,
		HeartbeatOff:     2000 * time.Millisecond,
	}
}

// WithDefaults fills zero durations and rates from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Session = c.Session.WithDefaults()
	if c.PowerSettle <= 0 {
		c.PowerSettle = def.PowerSettle
	}
	if c.ResetSettle <= 0 {
		c.ResetSettle = def.ResetSettle
	}
	if c.LinkPollInterval <= 0 {
		c.LinkPollInterval = def.LinkPollInterval
	}
	if c.MonitorHz <= 0 {
		c.MonitorHz = def.MonitorHz
	}
	if c.HeartbeatOn <= 0 {
		c.HeartbeatOn = def.HeartbeatOn
	}
	if c.HeartbeatOff <= 0 {
		c.HeartbeatOff = def.HeartbeatOff
	}
	if strings.TrimSpace(c.Version) == "" {
		c.Version = def.Version
	}
	return c
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(r *Runtime) { r.clock = c }
}

// WithRand replaces the key generation source. It must be cryptographically
// secure outside of tests.
func WithRand(rng io.Reader) Option {
	return func(r *Runtime) { r.rng = rng }
}

// Runtime is the rig firmware main loop.
type Runtime struct {
	cfg     Config
	hw      Hardware
	clock   clock.Clock
	rng     io.Reader
	backoff *rand.Rand
	monitor *monitorOwner
	link    *linkState
}

func New(cfg Config, hw Hardware, opts ...Option) (*Runtime, error) {
	cfg = cfg.WithDefaults()
	if strings.TrimSpace(cfg.DaemonAddr) == "" {
		return nil, ErrDaemonAddrRequired
	}
	if cfg.UID == uuid.Nil {
		return nil, ErrUIDRequired
	}
	switch {
	case hw.Monitor == nil:
		return nil, fmt.Errorf("%w: monitor", ErrHardwareRequired)
	case hw.Power == nil:
		return nil, fmt.Errorf("%w: power", ErrHardwareRequired)
	case hw.LED == nil:
		return nil, fmt.Errorf("%w: led", ErrHardwareRequired)
	case hw.Raw == nil:
		return nil, fmt.Errorf("%w: raw link", ErrHardwareRequired)
	case hw.Dialer == nil:
		return nil, fmt.Errorf("%w: dialer", ErrHardwareRequired)
	}
	r := &Runtime{
		cfg:     cfg,
		hw:      hw,
		clock:   clock.Real(),
		rng:     crand.Reader,
		backoff: rand.New(rand.NewSource(time.Now().UnixNano())),
		link:    newLinkState(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.monitor = newMonitorOwner(hw.Monitor, r.clock, cfg.MonitorHz)
	return r, nil
}

// Serve runs the task set until ctx ends. It returns nil on shutdown.
func (r *Runtime) Serve(ctx context.Context) error {
	log.Info().
		Str("version", r.cfg.Version).
		Str("uid", protocol.LinkOnline{UID: r.cfg.UID}.UIDHex()).
		Msg("link.Runtime.Serve oro link booting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.monitor.run(gctx)
	})
	g.Go(func() error {
		return runHeartbeat(gctx, r.hw.LED, r.clock, r.cfg.HeartbeatOn, r.cfg.HeartbeatOff)
	})
	g.Go(func() error {
		return runRawLink(gctx, r.hw.Raw, r.clock, r.cfg.LinkPollInterval, r.link)
	})
	g.Go(func() error {
		return r.sessionLoop(gctx)
	})
	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (r *Runtime) sessionLoop(ctx context.Context) error {
	_ = r.monitor.setScene(ctx, protocol.SceneLog)
	_ = r.monitor.log(ctx, protocol.Info("booting oro link..."))

	failures := 0
	delay := r.cfg.Session.IdleDelay
	for {
		_ = r.monitor.log(ctx, protocol.Warn(fmt.Sprintf("starting new test session in %s", delay)))
		if err := clock.Sleep(ctx, r.clock, delay); err != nil {
			return nil
		}
		_ = r.monitor.setScene(ctx, protocol.SceneLog)

		err := r.runSession(ctx)
		if ctx.Err() != nil {
			return nil
		}
		_ = r.monitor.setScene(ctx, protocol.SceneLog)
		if err != nil {
			failures++
			log.Error().Err(err).Int("failures", failures).Msg("link.Runtime.sessionLoop test session failed")
			_ = r.monitor.log(ctx, protocol.Error("test session failure"))
			observability.RecordSession(observability.RoleLink, observability.OutcomeFailed)
		} else {
			failures = 0
			log.Info().Msg("link.Runtime.sessionLoop test session complete")
			_ = r.monitor.log(ctx, protocol.Info("test session complete"))
			observability.RecordSession(observability.RoleLink, observability.OutcomeCompleted)
		}
		delay = r.nextDelay(failures)
	}
}

// nextDelay is the pause before the next attempt: IdleDelay after a clean
// session, exponential backoff after consecutive failures.
func (r *Runtime) nextDelay(failures int) time.Duration {
	if failures == 0 {
		return r.cfg.Session.IdleDelay
	}
	return session.NextBackoffDelay(r.cfg.Session.Backoff, failures, r.backoff)
}

func (r *Runtime) waitLinkUp(ctx context.Context) error {
	announced := false
	for {
		up, changed := r.link.get()
		if up {
			return nil
		}
		if !announced {
			announced = true
			log.Debug().Msg("link.Runtime.waitLinkUp waiting for link to come online")
			_ = r.monitor.log(ctx, protocol.Info("waiting for link to come online..."))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// runSession performs one attempt: connect, negotiate, announce and serve
// the daemon until ResetLink (nil) or a failure.
func (r *Runtime) runSession(ctx context.Context) error {
	if err := r.waitLinkUp(ctx); err != nil {
		return err
	}

	_ = r.monitor.log(ctx, protocol.Info("connecting to daemon..."))
	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.Session.ConnectTimeout)
	conn, err := r.hw.Dialer.DialContext(dialCtx, "tcp", r.cfg.DaemonAddr)
	cancel()
	if err != nil {
		_ = r.monitor.log(ctx, protocol.Error("failed to connect"))
		return fmt.Errorf("%w: %s: %w", ErrConnect, r.cfg.DaemonAddr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	start := time.Now()
	tx, rx, err := channel.NegotiateConn(conn, r.rng, channel.Initiator, r.cfg.Session.HandshakeTimeout)
	observability.RecordNegotiation(observability.RoleLink, time.Since(start), err == nil)
	if err != nil {
		return err
	}
	log.Info().Str("daemon", r.cfg.DaemonAddr).Msg("link.Runtime.runSession connected to daemon")
	_ = r.monitor.log(ctx, protocol.Info("connected to daemon"))

	online := protocol.LinkOnline{UID: r.cfg.UID, Version: r.cfg.Version}
	if err := tx.Send(online); err != nil {
		return err
	}
	observability.RecordPacketSent(observability.RoleLink, online.Kind())

	for {
		p, err := rx.Receive()
		if err != nil {
			return err
		}
		observability.RecordPacketReceived(observability.RoleLink, p.Kind())
		done, err := r.dispatch(ctx, p)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// dispatch applies one daemon packet. It reports true once the daemon has
// ended the session.
func (r *Runtime) dispatch(ctx context.Context, p protocol.Packet) (bool, error) {
	switch v := p.(type) {
	case protocol.SetScene:
		return false, r.monitor.setScene(ctx, v.Scene)
	case protocol.Log:
		return false, r.monitor.log(ctx, v.Entry)
	case protocol.SetPowerState:
		r.hw.Power.SetPowerState(v.State)
		return false, nil
	case protocol.PressPower:
		r.hw.Power.PressPower()
		return false, clock.Sleep(ctx, r.clock, r.cfg.PowerSettle)
	case protocol.PressReset:
		r.hw.Power.PressReset()
		return false, clock.Sleep(ctx, r.clock, r.cfg.ResetSettle)
	case protocol.StartTestSession:
		log.Info().
			Uint32("total_tests", v.TotalTests).
			Str("ref_id", v.RefID).
			Msg("link.Runtime.dispatch test session started")
		return false, r.monitor.startTestSession(ctx, v)
	case protocol.StartTest:
		return false, r.monitor.startTest(ctx, v.Name)
	case protocol.ResetLink:
		log.Info().Msg("link.Runtime.dispatch daemon reset the link")
		return true, nil
	default:
		event := log.Warn().Str("kind", p.Kind())
		if u, ok := p.(protocol.Unknown); ok {
			event = event.Uint8("tag", u.UnknownTag)
		}
		event.Msg("link.Runtime.dispatch dropping unexpected packet")
		observability.RecordPacketDropped(observability.RoleLink, p.Kind())
		return false, nil
	}
}
