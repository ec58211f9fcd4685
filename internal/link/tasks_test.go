package link

import (
	"context"
	"testing"
	"time"

	"github.com/oro-os/oro-link-x86/internal/clock"
	"github.com/oro-os/oro-link-x86/internal/hardware/sim"
	"github.com/oro-os/oro-link-x86/internal/protocol"
	"github.com/oro-os/oro-link-x86/internal/testutil/testlog"
)

func TestMonitorOwnerAppliesCommandsAndTicks(t *testing.T) {
	testlog.Start(t)
	fake := clock.Fake(time.Unix(0, 0))
	m := sim.NewMonitor(0)
	owner := newMonitorOwner(m, fake, 240)
	if owner.interval != time.Second/240 {
		t.Fatalf("interval got=%v", owner.interval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- owner.run(ctx) }()

	if err := owner.setScene(ctx, protocol.SceneTest); err != nil {
		t.Fatalf("set scene: %v", err)
	}
	if err := owner.startTest(ctx, "a"); err != nil {
		t.Fatalf("start test: %v", err)
	}
	if err := owner.flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	st := m.State()
	if st.Scene != protocol.SceneTest || len(st.Tests) != 1 {
		t.Fatalf("commands not applied: %+v", st)
	}

	waitFor(t, "monitor tick", func() bool {
		fake.Tick()
		return m.State().Ticks > 0
	})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("owner returned %v", err)
	}
}

func TestHeartbeatBlinksAndEndsOff(t *testing.T) {
	testlog.Start(t)
	led := &sim.LED{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runHeartbeat(ctx, led, clock.Real(), time.Millisecond, time.Millisecond) }()

	waitFor(t, "two flashes", func() bool { return led.Flashes() >= 2 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("heartbeat returned %v", err)
	}
	if led.IsOn() {
		t.Fatalf("led left on after shutdown")
	}
}

func TestRawLinkTaskTracksCarrierAndDrains(t *testing.T) {
	testlog.Start(t)
	raw := sim.NewRawLink(false)
	raw.Inject([]byte{1, 2, 3})
	raw.Inject(make([]byte, 64))
	state := newLinkState()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runRawLink(ctx, raw, clock.Real(), time.Millisecond, state) }()

	waitFor(t, "drain", func() bool { return raw.Pending() == 0 })
	up, changed := state.get()
	if up {
		t.Fatalf("carrier reported up while down")
	}
	raw.SetUp(true)
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatalf("carrier change never published")
	}
	if up, _ := state.get(); !up {
		t.Fatalf("carrier not up after change")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("raw link task returned %v", err)
	}
}

// flush blocks until every command queued before it has been applied.
func (o *monitorOwner) flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := o.do(ctx, func(Monitor) { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Monitor  = (*sim.Monitor)(nil)
	_ Power    = (*sim.Power)(nil)
	_ DebugLED = (*sim.LED)(nil)
	_ RawLink  = (*sim.RawLink)(nil)
)
