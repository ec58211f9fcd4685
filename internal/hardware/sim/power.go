package sim

import (
	"sync"

	"github.com/oro-os/oro-link-x86/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Power models the system-under-test power rail and its front panel buttons.
type Power struct {
	mu          sync.Mutex
	state       protocol.PowerState
	powerPushes int
	resetPushes int
}

func NewPower() *Power { return &Power{state: protocol.PowerOff} }

func (p *Power) SetPowerState(s protocol.PowerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	log.Info().Str("state", s.String()).Msg("sim.Power.SetPowerState")
}

func (p *Power) PressPower() {
	p.mu.Lock()
	p.powerPushes++
	p.mu.Unlock()
	log.Info().Msg("sim.Power.PressPower")
}

func (p *Power) PressReset() {
	p.mu.Lock()
	p.resetPushes++
	p.mu.Unlock()
	log.Info().Msg("sim.Power.PressReset")
}

// PowerState is a snapshot of a Power.
type PowerState struct {
	State       protocol.PowerState
	PowerPushes int
	ResetPushes int
}

func (p *Power) State() PowerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PowerState{State: p.state, PowerPushes: p.powerPushes, ResetPushes: p.resetPushes}
}
