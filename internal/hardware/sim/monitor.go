package sim

import (
	"sync"
	"time"

	"github.com/oro-os/oro-link-x86/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Monitor is a headless display. It keeps the current scene, the log lines
// and the test session progress a physical monitor would render.
type Monitor struct {
	mu       sync.Mutex
	scene    protocol.Scene
	logs     []protocol.LogEntry
	session  *protocol.StartTestSession
	tests    []string
	ticks    uint64
	lastTick time.Time
	maxLogs  int
}

// NewMonitor keeps at most maxLogs log lines; zero means unbounded.
func NewMonitor(maxLogs int) *Monitor {
	return &Monitor{scene: protocol.SceneLogo, maxLogs: maxLogs}
}

func (m *Monitor) SetScene(s protocol.Scene) {
	m.mu.Lock()
	m.scene = s
	m.mu.Unlock()
	log.Debug().Str("scene", s.String()).Msg("sim.Monitor.SetScene")
}

func (m *Monitor) Log(e protocol.LogEntry) {
	m.mu.Lock()
	m.logs = append(m.logs, e)
	if m.maxLogs > 0 && len(m.logs) > m.maxLogs {
		m.logs = append(m.logs[:0], m.logs[len(m.logs)-m.maxLogs:]...)
	}
	m.mu.Unlock()
	log.Info().Str("severity", e.Severity.String()).Msg("sim.Monitor " + e.Message)
}

func (m *Monitor) StartTestSession(s protocol.StartTestSession) {
	m.mu.Lock()
	m.session = &s
	m.tests = m.tests[:0]
	m.mu.Unlock()
	log.Info().
		Uint32("total_tests", s.TotalTests).
		Str("author", s.Author).
		Str("title", s.Title).
		Str("ref_id", s.RefID).
		Msg("sim.Monitor.StartTestSession")
}

func (m *Monitor) StartTest(name string) {
	m.mu.Lock()
	m.tests = append(m.tests, name)
	n := len(m.tests)
	m.mu.Unlock()
	log.Debug().Str("name", name).Int("index", n-1).Msg("sim.Monitor.StartTest")
}

func (m *Monitor) Tick(now time.Time) {
	m.mu.Lock()
	m.ticks++
	m.lastTick = now
	m.mu.Unlock()
}

// MonitorState is a snapshot of a Monitor.
type MonitorState struct {
	Scene   protocol.Scene
	Logs    []protocol.LogEntry
	Session *protocol.StartTestSession
	Tests   []string
	Ticks   uint64
}

func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := MonitorState{
		Scene: m.scene,
		Logs:  append([]protocol.LogEntry(nil), m.logs...),
		Tests: append([]string(nil), m.tests...),
		Ticks: m.ticks,
	}
	if m.session != nil {
		s := *m.session
		st.Session = &s
	}
	return st
}

// HasLog reports whether a line with exactly msg was logged.
func (m *Monitor) HasLog(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.logs {
		if e.Message == msg {
			return true
		}
	}
	return false
}
