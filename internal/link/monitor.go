package link

import (
	"context"
	"time"

	"github.com/oro-os/oro-link-x86/internal/clock"
	"github.com/oro-os/oro-link-x86/internal/protocol"
)

type monitorCmd func(Monitor)

// monitorOwner is the only goroutine that touches the Monitor. Everyone else
// queues commands.
type monitorOwner struct {
	m        Monitor
	clock    clock.Clock
	interval time.Duration
	cmds     chan monitorCmd
}

func newMonitorOwner(m Monitor, c clock.Clock, hz int) *monitorOwner {
	if hz <= 0 {
		hz = 240
	}
	return &monitorOwner{
		m:        m,
		clock:    c,
		interval: time.Second / time.Duration(hz),
		cmds:     make(chan monitorCmd, 64),
	}
}

func (o *monitorOwner) run(ctx context.Context) error {
	ticker := o.clock.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.drain()
			return nil
		case cmd := <-o.cmds:
			cmd(o.m)
		case <-ticker.C:
			o.m.Tick(o.clock.Now())
		}
	}
}

// drain applies whatever is still queued so the last messages of a session
// reach the display.
func (o *monitorOwner) drain() {
	for {
		select {
		case cmd := <-o.cmds:
			cmd(o.m)
		default:
			return
		}
	}
}

func (o *monitorOwner) do(ctx context.Context, cmd monitorCmd) error {
	select {
	case o.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *monitorOwner) setScene(ctx context.Context, s protocol.Scene) error {
	return o.do(ctx, func(m Monitor) { m.SetScene(s) })
}

func (o *monitorOwner) log(ctx context.Context, e protocol.LogEntry) error {
	return o.do(ctx, func(m Monitor) { m.Log(e) })
}

func (o *monitorOwner) startTestSession(ctx context.Context, s protocol.StartTestSession) error {
	return o.do(ctx, func(m Monitor) { m.StartTestSession(s) })
}

func (o *monitorOwner) startTest(ctx context.Context, name string) error {
	return o.do(ctx, func(m Monitor) { m.StartTest(name) })
}
