package link

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/oro-os/oro-link-x86/internal/clock"
	"github.com/oro-os/oro-link-x86/internal/daemon"
	"github.com/oro-os/oro-link-x86/internal/hardware/sim"
	"github.com/oro-os/oro-link-x86/internal/protocol"
	"github.com/oro-os/oro-link-x86/internal/protocol/channel"
	"github.com/oro-os/oro-link-x86/internal/protocol/session"
	"github.com/oro-os/oro-link-x86/internal/testutil/testlog"
)

func rigUID() uuid.UUID {
	var uid uuid.UUID
	for i := range uid {
		uid[i] = 0xAA
	}
	return uid
}

type pipeDialer struct {
	conns chan net.Conn
	calls atomic.Int32
	err   error
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{conns: make(chan net.Conn, 1)}
}

func (d *pipeDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	client, server := net.Pipe()
	d.conns <- server
	return client, nil
}

type rig struct {
	monitor *sim.Monitor
	power   *sim.Power
	led     *sim.LED
	raw     *sim.RawLink
}

func newRig() rig {
	return rig{
		monitor: sim.NewMonitor(0),
		power:   sim.NewPower(),
		led:     &sim.LED{},
		raw:     sim.NewRawLink(true),
	}
}

func (r rig) hardware(d Dialer) Hardware {
	return Hardware{Monitor: r.monitor, Power: r.power, LED: r.led, Raw: r.raw, Dialer: d}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.UID = rigUID()
	cfg.Version = "1.0.0"
	cfg.Session.HandshakeTimeout = 2 * time.Second
	return cfg
}

// startMonitor runs the monitor owner for a test that drives runSession
// directly.
func startMonitor(t *testing.T, r *Runtime) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.monitor.run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func TestRuntimeDispatchesDaemonPackets(t *testing.T) {
	testlog.Start(t)
	hw := newRig()
	dialer := newPipeDialer()
	fake := clock.Fake(time.Unix(0, 0))
	r, err := New(testConfig(), hw.hardware(dialer), WithClock(fake), WithRand(rand.New(rand.NewSource(1))))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	ctx := startMonitor(t, r)
	r.link.set(true)

	script := []protocol.Packet{
		protocol.SetScene{Scene: protocol.SceneLog},
		protocol.Log{Entry: protocol.Info("booting machine...")},
		protocol.SetPowerState{State: protocol.PowerOn},
		protocol.PressPower{},
		protocol.StartTestSession{TotalTests: 2, Author: "a", Title: "t", RefID: "r"},
		protocol.SetScene{Scene: protocol.SceneTest},
		protocol.StartTest{Name: "test_hid_mouse"},
		protocol.Unknown{UnknownTag: 0xF0, Payload: []byte{9}},
		protocol.LinkOnline{UID: uuid.Nil, Version: "bogus"},
		protocol.PressReset{},
		protocol.StartTest{Name: "test_hid_keyboard"},
		protocol.ResetLink{},
	}
	daemonErr := make(chan error, 1)
	go func() {
		conn := <-dialer.conns
		defer conn.Close()
		tx, rx, err := channel.NegotiateConn(conn, rand.New(rand.NewSource(2)), channel.Responder, 2*time.Second)
		if err != nil {
			daemonErr <- err
			return
		}
		p, err := rx.Receive()
		if err != nil {
			daemonErr <- err
			return
		}
		if diff := cmp.Diff(protocol.Packet(protocol.LinkOnline{UID: rigUID(), Version: "1.0.0"}), p); diff != "" {
			t.Errorf("announcement mismatch (-want +got):\n%s", diff)
		}
		for _, p := range script {
			if err := tx.Send(p); err != nil {
				daemonErr <- err
				return
			}
		}
		daemonErr <- nil
	}()

	if err := r.runSession(ctx); err != nil {
		t.Fatalf("run session: %v", err)
	}
	if err := <-daemonErr; err != nil {
		t.Fatalf("daemon side: %v", err)
	}
	if err := r.monitor.flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	st := hw.monitor.State()
	if st.Scene != protocol.SceneTest {
		t.Fatalf("scene got=%v want=test", st.Scene)
	}
	if diff := cmp.Diff([]string{"test_hid_mouse", "test_hid_keyboard"}, st.Tests); diff != "" {
		t.Fatalf("tests mismatch (-want +got):\n%s", diff)
	}
	if st.Session == nil || st.Session.RefID != "r" {
		t.Fatalf("session not shown: %+v", st.Session)
	}
	for _, msg := range []string{"connecting to daemon...", "connected to daemon", "booting machine..."} {
		if !hw.monitor.HasLog(msg) {
			t.Fatalf("monitor missing log %q: %+v", msg, st.Logs)
		}
	}
	if diff := cmp.Diff(sim.PowerState{State: protocol.PowerOn, PowerPushes: 1, ResetPushes: 1}, hw.power.State()); diff != "" {
		t.Fatalf("power mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{3 * time.Second, 500 * time.Millisecond}, fake.Waits()); diff != "" {
		t.Fatalf("settle delays mismatch (-want +got):\n%s", diff)
	}
}

func TestRuntimeConnectFailure(t *testing.T) {
	testlog.Start(t)
	hw := newRig()
	dialer := newPipeDialer()
	dialer.err = errors.New("connection refused")
	r, err := New(testConfig(), hw.hardware(dialer), WithClock(clock.Fake(time.Unix(0, 0))))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	ctx := startMonitor(t, r)
	r.link.set(true)

	if err := r.runSession(ctx); !errors.Is(err, ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}
	if err := r.monitor.flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !hw.monitor.HasLog("failed to connect") {
		t.Fatalf("monitor missing failure log")
	}
}

func TestRuntimeNegotiationFailure(t *testing.T) {
	testlog.Start(t)
	hw := newRig()
	dialer := newPipeDialer()
	r, err := New(testConfig(), hw.hardware(dialer), WithClock(clock.Fake(time.Unix(0, 0))))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	ctx := startMonitor(t, r)
	r.link.set(true)
	go func() {
		conn := <-dialer.conns
		_ = conn.Close()
	}()

	err = r.runSession(ctx)
	if !errors.Is(err, channel.ErrNegotiation) {
		t.Fatalf("expected negotiation error, got %v", err)
	}
}

func TestRuntimeDaemonHangUpEndsSession(t *testing.T) {
	testlog.Start(t)
	hw := newRig()
	dialer := newPipeDialer()
	r, err := New(testConfig(), hw.hardware(dialer), WithClock(clock.Fake(time.Unix(0, 0))))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	ctx := startMonitor(t, r)
	r.link.set(true)
	go func() {
		conn := <-dialer.conns
		defer conn.Close()
		_, rx, err := channel.NegotiateConn(conn, rand.New(rand.NewSource(6)), channel.Responder, 2*time.Second)
		if err != nil {
			return
		}
		_, _ = rx.Receive()
	}()

	done := make(chan error, 1)
	go func() { done <- r.runSession(ctx) }()
	select {
	case err := <-done:
		if !errors.Is(err, channel.ErrRead) {
			t.Fatalf("expected read error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("session kept waiting after the daemon hung up")
	}
}

func TestRuntimeWaitsForLinkUp(t *testing.T) {
	testlog.Start(t)
	hw := newRig()
	dialer := newPipeDialer()
	dialer.err = errors.New("refused")
	r, err := New(testConfig(), hw.hardware(dialer), WithClock(clock.Fake(time.Unix(0, 0))))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	ctx := startMonitor(t, r)

	done := make(chan error, 1)
	go func() {
		done <- r.runSession(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	if n := dialer.calls.Load(); n != 0 {
		t.Fatalf("dialed %d times before link up", n)
	}
	r.link.set(true)
	select {
	case err := <-done:
		if !errors.Is(err, ErrConnect) {
			t.Fatalf("expected ErrConnect, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session never started after link up")
	}
	if err := r.monitor.flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if !hw.monitor.HasLog("waiting for link to come online...") {
		t.Fatalf("monitor missing wait log")
	}
}

func TestRuntimeNextDelay(t *testing.T) {
	testlog.Start(t)
	cfg := testConfig()
	cfg.Session.IdleDelay = 1500 * time.Millisecond
	cfg.Session.Backoff = session.BackoffConfig{InitialDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	r, err := New(cfg, newRig().hardware(newPipeDialer()))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	got := []time.Duration{r.nextDelay(0), r.nextDelay(1), r.nextDelay(2), r.nextDelay(3), r.nextDelay(9)}
	want := []time.Duration{1500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("delays mismatch (-want +got):\n%s", diff)
	}
}

func TestNewValidatesCollaborators(t *testing.T) {
	testlog.Start(t)
	hw := newRig().hardware(newPipeDialer())
	hw.Power = nil
	if _, err := New(testConfig(), hw); !errors.Is(err, ErrHardwareRequired) {
		t.Fatalf("expected ErrHardwareRequired, got %v", err)
	}
	cfg := testConfig()
	cfg.DaemonAddr = " "
	if _, err := New(cfg, newRig().hardware(newPipeDialer())); !errors.Is(err, ErrDaemonAddrRequired) {
		t.Fatalf("expected ErrDaemonAddrRequired, got %v", err)
	}
	cfg = testConfig()
	cfg.UID = uuid.Nil
	if _, err := New(cfg, newRig().hardware(newPipeDialer())); !errors.Is(err, ErrUIDRequired) {
		t.Fatalf("expected ErrUIDRequired, got %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestServeAgainstDaemon(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	dcfg := daemon.DefaultServiceConfig()
	dcfg.Clock = clock.Fake(time.Unix(0, 0))
	dcfg.Plan = daemon.Plan{TotalTests: 5, RefID: "e2e", ResetEvery: 2}
	svc := daemon.NewServiceWithConfig(dcfg)
	dctx, dcancel := context.WithCancel(context.Background())
	defer dcancel()
	go func() { _ = svc.Serve(dctx, ln) }()

	hw := newRig()
	cfg := testConfig()
	cfg.DaemonAddr = ln.Addr().String()
	cfg.PowerSettle = time.Millisecond
	cfg.ResetSettle = time.Millisecond
	cfg.LinkPollInterval = 5 * time.Millisecond
	cfg.HeartbeatOn = time.Millisecond
	cfg.HeartbeatOff = 2 * time.Millisecond
	cfg.MonitorHz = 1000
	cfg.Session.IdleDelay = 10 * time.Millisecond
	r, err := New(cfg, hw.hardware(&net.Dialer{}))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx) }()

	waitFor(t, "test session complete", func() bool { return hw.monitor.HasLog("test session complete") })
	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}

	ps := hw.power.State()
	if ps.State != protocol.PowerOn || ps.PowerPushes < 1 || ps.ResetPushes < 2 {
		t.Fatalf("unexpected power state: %+v", ps)
	}
	if !hw.monitor.HasLog("booting oro link...") || !hw.monitor.HasLog("booting machine...") {
		t.Fatalf("monitor missing boot logs")
	}
	if hw.led.Flashes() == 0 || hw.led.IsOn() {
		t.Fatalf("heartbeat led flashes=%d on=%v", hw.led.Flashes(), hw.led.IsOn())
	}
	if hw.monitor.State().Ticks == 0 {
		t.Fatalf("monitor never ticked")
	}
}
