package daemon

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oro-os/oro-link-x86/internal/auth"
	"github.com/oro-os/oro-link-x86/internal/clock"
	"github.com/oro-os/oro-link-x86/internal/observability"
	"github.com/oro-os/oro-link-x86/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrRandom = errors.New("daemon: random source failed")
	// ErrLinkRejected ends a connection whose LinkOnline failed validation.
	ErrLinkRejected = errors.New("daemon: link rejected")
)

// State is the orchestrator position for one connection.
type State int

const (
	AwaitingLink State = iota
	LinkAnnounced
	SessionRunning
	Draining
)

func (s State) String() string {
	switch s {
	case AwaitingLink:
		return "awaiting_link"
	case LinkAnnounced:
		return "link_announced"
	case SessionRunning:
		return "session_running"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// PacketSender is the outbound half of a secure channel.
type PacketSender interface {
	Send(p protocol.Packet) error
}

// PacketReceiver is the inbound half of a secure channel.
type PacketReceiver interface {
	Receive() (protocol.Packet, error)
}

// Plan is the scripted session the daemon runs whenever a link comes online.
type Plan struct {
	TotalTests uint32
	Tests      []string
	Author     string
	Title      string
	// RefID is sent as-is when set. Empty means a fresh id per session.
	RefID      string
	ResetEvery uint32
	MaxJitter  time.Duration
	LogoPause  time.Duration
	BootPause  time.Duration
}

func DefaultPlan() Plan {
	return Plan{
		TotalTests: 1337,
		Tests: []string{
			"test_protocol_proc_macro",
			"test_test_harness",
			"test_hid_mouse",
			"test_hid_keyboard",
		},
		Author:     "Josh Junon",
		Title:      "test: daemon protocol",
		ResetEvery: 50,
		MaxJitter:  300 * time.Millisecond,
		LogoPause:  3 * time.Second,
		BootPause:  5 * time.Second,
	}
}

// WithDefaults fills the fields that have no meaningful zero value.
func (p Plan) WithDefaults() Plan {
	def := DefaultPlan()
	if len(p.Tests) == 0 {
		p.Tests = def.Tests
	}
	if p.ResetEvery == 0 {
		p.ResetEvery = def.ResetEvery
	}
	return p
}

// TestSession tracks progress through the current plan.
type TestSession struct {
	TotalTests      uint32
	Author          string
	Title           string
	RefID           string
	CurrentIndex    uint32
	TestsSinceReset uint32
	StartedAt       time.Time
}

// LinkInfo is what the connected link announced about itself.
type LinkInfo struct {
	UID         uuid.UUID
	Version     string
	AnnouncedAt time.Time
}

// UIDHex renders the UID the way links print it.
func (l LinkInfo) UIDHex() string {
	return protocol.LinkOnline{UID: l.UID}.UIDHex()
}

// Options configures an Orchestrator. Zero fields take defaults.
type Options struct {
	Plan      Plan
	Clock     clock.Clock
	Rand      io.Reader
	Validator auth.Validator
	Remote    string
}

// Orchestrator drives one connected link through the plan. State, Session and
// Link may be called from any goroutine while Run is active.
type Orchestrator struct {
	plan      Plan
	clock     clock.Clock
	rng       io.Reader
	validator auth.Validator
	logger    zerolog.Logger

	mu      sync.Mutex
	state   State
	session *TestSession
	link    *LinkInfo
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Rand == nil {
		opts.Rand = crand.Reader
	}
	if opts.Validator == nil {
		opts.Validator = auth.AllowAll{}
	}
	return &Orchestrator{
		plan:      opts.Plan.WithDefaults(),
		clock:     opts.Clock,
		rng:       opts.Rand,
		validator: opts.Validator,
		logger:    log.With().Str("remote", opts.Remote).Logger(),
		state:     AwaitingLink,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Session returns a copy of the running session, if any.
func (o *Orchestrator) Session() (TestSession, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return TestSession{}, false
	}
	return *o.session, true
}

// Link returns the most recent accepted announcement, if any.
func (o *Orchestrator) Link() (LinkInfo, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.link == nil {
		return LinkInfo{}, false
	}
	return *o.link, true
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run receives packets until rx or tx fails or ctx ends. Anything other than
// LinkOnline is logged and dropped without a state change. Each accepted
// LinkOnline runs the plan to completion before the next packet is read. A
// LinkOnline the validator refuses ends Run with ErrLinkRejected.
func (o *Orchestrator) Run(ctx context.Context, tx PacketSender, rx PacketReceiver) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := rx.Receive()
		if err != nil {
			return err
		}
		observability.RecordPacketReceived(observability.RoleDaemon, p.Kind())

		online, ok := p.(protocol.LinkOnline)
		if !ok {
			o.drop(p)
			continue
		}
		if err := o.validator.Validate(online.UID); err != nil {
			o.logger.Warn().
				Str("uid", online.UIDHex()).
				Err(err).
				Msg("daemon.Orchestrator.Run link rejected")
			observability.RecordPacketDropped(observability.RoleDaemon, p.Kind())
			return fmt.Errorf("%w: %w", ErrLinkRejected, err)
		}
		o.announce(online)
		if err := o.runSession(ctx, tx); err != nil {
			if o.State() == SessionRunning {
				observability.RecordSession(observability.RoleDaemon, observability.OutcomeFailed)
			}
			return err
		}
	}
}

func (o *Orchestrator) drop(p protocol.Packet) {
	event := o.logger.Warn().Str("kind", p.Kind()).Str("state", o.State().String())
	if u, ok := p.(protocol.Unknown); ok {
		event = event.Uint8("tag", u.UnknownTag).Int("len", len(u.Payload))
	}
	event.Msg("daemon.Orchestrator.Run dropping unexpected packet")
	observability.RecordPacketDropped(observability.RoleDaemon, p.Kind())
}

func (o *Orchestrator) announce(online protocol.LinkOnline) {
	info := LinkInfo{UID: online.UID, Version: online.Version, AnnouncedAt: o.clock.Now()}
	o.mu.Lock()
	o.link = &info
	o.state = LinkAnnounced
	o.mu.Unlock()
	o.logger.Info().
		Str("uid", online.UIDHex()).
		Str("version", online.Version).
		Msg("daemon.Orchestrator.Run link came online")
}

func (o *Orchestrator) send(tx PacketSender, p protocol.Packet) error {
	if err := tx.Send(p); err != nil {
		return err
	}
	observability.RecordPacketSent(observability.RoleDaemon, p.Kind())
	o.logger.Trace().Str("kind", p.Kind()).Msg("daemon.Orchestrator.send")
	return nil
}

func (o *Orchestrator) runSession(ctx context.Context, tx PacketSender) error {
	boot := []protocol.Packet{
		protocol.SetScene{Scene: protocol.SceneLog},
		protocol.Log{Entry: protocol.Info("booting machine...")},
		protocol.SetPowerState{State: protocol.PowerOn},
		protocol.PressPower{},
	}
	if err := o.send(tx, protocol.SetScene{Scene: protocol.SceneLogo}); err != nil {
		return err
	}
	if err := clock.Sleep(ctx, o.clock, o.plan.LogoPause); err != nil {
		return err
	}
	for _, p := range boot {
		if err := o.send(tx, p); err != nil {
			return err
		}
	}
	if err := clock.Sleep(ctx, o.clock, o.plan.BootPause); err != nil {
		return err
	}

	refID := o.plan.RefID
	if refID == "" {
		var err error
		if refID, err = newRefID(o.rng); err != nil {
			return err
		}
	}
	sess := &TestSession{
		TotalTests: o.plan.TotalTests,
		Author:     o.plan.Author,
		Title:      o.plan.Title,
		RefID:      refID,
		StartedAt:  o.clock.Now(),
	}
	start := protocol.StartTestSession{
		TotalTests: sess.TotalTests,
		Author:     sess.Author,
		Title:      sess.Title,
		RefID:      sess.RefID,
	}
	if err := o.send(tx, start); err != nil {
		return err
	}
	o.mu.Lock()
	o.session = sess
	o.state = SessionRunning
	o.mu.Unlock()
	observability.RecordSession(observability.RoleDaemon, observability.OutcomeStarted)
	o.logger.Info().
		Uint32("total_tests", sess.TotalTests).
		Str("ref_id", sess.RefID).
		Msg("daemon.Orchestrator.runSession test session started")

	if err := o.send(tx, protocol.SetScene{Scene: protocol.SceneTest}); err != nil {
		return err
	}

	for i := uint32(0); i < o.plan.TotalTests; i++ {
		if i > 0 && i%o.plan.ResetEvery == 0 {
			if err := o.send(tx, protocol.PressReset{}); err != nil {
				return err
			}
			observability.RecordReset()
			o.mu.Lock()
			sess.TestsSinceReset = 0
			o.mu.Unlock()
		}
		name := o.plan.Tests[int(i%uint32(len(o.plan.Tests)))]
		if err := o.send(tx, protocol.StartTest{Name: name}); err != nil {
			return err
		}
		observability.RecordTestStarted()
		o.mu.Lock()
		sess.CurrentIndex = i
		sess.TestsSinceReset++
		o.mu.Unlock()

		pause, err := jitter(o.rng, o.plan.MaxJitter)
		if err != nil {
			return err
		}
		if err := clock.Sleep(ctx, o.clock, pause); err != nil {
			return err
		}
	}

	if err := o.send(tx, protocol.ResetLink{}); err != nil {
		return err
	}
	o.mu.Lock()
	o.session = nil
	o.state = Draining
	o.mu.Unlock()
	observability.RecordSession(observability.RoleDaemon, observability.OutcomeCompleted)
	o.logger.Info().
		Str("ref_id", refID).
		Msg("daemon.Orchestrator.runSession test session complete")
	return nil
}

// jitter draws a pause in [0, max).
func jitter(rng io.Reader, max time.Duration) (time.Duration, error) {
	if max <= 0 {
		return 0, nil
	}
	var b [8]byte
	if _, err := io.ReadFull(rng, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRandom, err)
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max)), nil
}

// newRefID returns 32 lowercase hex digits.
func newRefID(rng io.Reader) (string, error) {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRandom, err)
	}
	return hex.EncodeToString(id[:]), nil
}
