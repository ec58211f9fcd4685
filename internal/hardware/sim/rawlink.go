package sim

import "sync"

// RawLink is the rig's raw ethernet port facing the system under test.
// Frames pushed with Inject are handed out by TryReceive in order.
type RawLink struct {
	mu      sync.Mutex
	up      bool
	inbound [][]byte
}

func NewRawLink(up bool) *RawLink { return &RawLink{up: up} }

func (l *RawLink) SetUp(up bool) {
	l.mu.Lock()
	l.up = up
	l.mu.Unlock()
}

func (l *RawLink) IsLinkUp() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

// TryReceive copies the next pending frame into buf. It never blocks.
func (l *RawLink) TryReceive(buf []byte) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inbound) == 0 {
		return 0, false
	}
	frame := l.inbound[0]
	l.inbound = l.inbound[1:]
	return copy(buf, frame), true
}

// Inject queues a frame as if the system under test had sent it.
func (l *RawLink) Inject(frame []byte) {
	l.mu.Lock()
	l.inbound = append(l.inbound, append([]byte(nil), frame...))
	l.mu.Unlock()
}

// Pending reports how many injected frames are still unread.
func (l *RawLink) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.inbound)
}
