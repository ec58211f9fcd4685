package link

import (
	"context"
	"net"
	"time"

	"github.com/oro-os/oro-link-x86/internal/protocol"
)

// Monitor renders the rig status display. Only the monitor task calls it.
type Monitor interface {
	SetScene(s protocol.Scene)
	Log(e protocol.LogEntry)
	StartTestSession(s protocol.StartTestSession)
	StartTest(name string)
	// Tick advances animations and redraws. It is called at the refresh rate.
	Tick(now time.Time)
}

// Power drives the system under test. Only the session loop calls it.
type Power interface {
	SetPowerState(s protocol.PowerState)
	PressPower()
	PressReset()
}

// DebugLED is the heartbeat indicator.
type DebugLED interface {
	On()
	Off()
}

// RawLink is the raw network port facing the system under test. Only the
// raw link task calls it, and it only reads: carrier state and frames to
// drain.
type RawLink interface {
	IsLinkUp() bool
	// TryReceive copies one pending frame into buf without blocking.
	TryReceive(buf []byte) (int, bool)
}

// Dialer opens the connection to the daemon. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Hardware bundles the rig collaborators.
type Hardware struct {
	Monitor Monitor
	Power   Power
	LED     DebugLED
	Raw     RawLink
	Dialer  Dialer
}
