package link

import (
	"context"
	"sync"
	"time"

	"github.com/oro-os/oro-link-x86/internal/clock"
	"github.com/rs/zerolog/log"
)

func runHeartbeat(ctx context.Context, led DebugLED, c clock.Clock, on, off time.Duration) error {
	defer led.Off()
	for {
		led.On()
		if err := clock.Sleep(ctx, c, on); err != nil {
			return nil
		}
		led.Off()
		if err := clock.Sleep(ctx, c, off); err != nil {
			return nil
		}
	}
}

// linkState publishes the raw link carrier to the session loop.
type linkState struct {
	mu      sync.Mutex
	up      bool
	changed chan struct{}
}

func newLinkState() *linkState {
	return &linkState{changed: make(chan struct{})}
}

func (s *linkState) set(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.up == up {
		return
	}
	s.up = up
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *linkState) get() (bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.up, s.changed
}

const rawFrameSize = 2048

// runRawLink owns the raw port: it tracks carrier state and drains whatever
// the system under test sends so its queue never backs up.
func runRawLink(ctx context.Context, raw RawLink, c clock.Clock, poll time.Duration, state *linkState) error {
	ticker := c.NewTicker(poll)
	defer ticker.Stop()
	buf := make([]byte, rawFrameSize)
	for {
		up := raw.IsLinkUp()
		state.set(up)
		for {
			n, ok := raw.TryReceive(buf)
			if !ok {
				break
			}
			log.Debug().Int("bytes", n).Msg("link.runRawLink received frame")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
