package channel

import (
	"crypto/cipher"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/oro-os/oro-link-x86/internal/protocol"
	"github.com/oro-os/oro-link-x86/internal/protocol/frame"
)

// Sender encrypts and writes packets. It is safe for concurrent use; frames
// are never interleaved. After the first write failure every later Send fails
// with ErrSenderClosed without touching the stream.
type Sender struct {
	mu     sync.Mutex
	w      io.Writer
	block  cipher.Block
	iv     [frame.BlockSize]byte
	limits frame.Limits
	err    error
}

// Receiver reads and decrypts packets. It must be used from one goroutine.
// After a stream or decode failure the CBC chain is lost, so the error sticks.
type Receiver struct {
	r      io.Reader
	block  cipher.Block
	iv     [frame.BlockSize]byte
	limits frame.Limits
	err    error
}

func newSender(w io.Writer, block cipher.Block, limits frame.Limits) *Sender {
	return &Sender{w: w, block: block, limits: limits}
}

func newReceiver(r io.Reader, block cipher.Block, limits frame.Limits) *Receiver {
	return &Receiver{r: r, block: block, limits: limits}
}

type flusher interface {
	Flush() error
}

// Send encodes, encrypts and writes p as one frame.
func (s *Sender) Send(p protocol.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return fmt.Errorf("%w: %w", ErrSenderClosed, s.err)
	}

	payload, err := protocol.Encode(p)
	if err != nil {
		return fmt.Errorf("channel: encode: %w", err)
	}
	body, err := frame.Pad(payload, s.limits)
	if err != nil {
		return fmt.Errorf("channel: encode %s: %w", p.Kind(), err)
	}
	cipher.NewCBCEncrypter(s.block, s.iv[:]).CryptBlocks(body, body)
	copy(s.iv[:], body[len(body)-frame.BlockSize:])

	if err := frame.WriteFrame(s.w, body, s.limits); err != nil {
		s.err = err
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if f, ok := s.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			s.err = err
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	return nil
}

// Receive blocks for the next frame and returns its packet. Unrecognized tags
// come back as protocol.Unknown with a nil error.
func (r *Receiver) Receive() (protocol.Packet, error) {
	if r.err != nil {
		return nil, r.err
	}
	p, err := r.receive()
	if err != nil {
		r.err = err
	}
	return p, err
}

func (r *Receiver) receive() (protocol.Packet, error) {
	body, err := frame.ReadFrame(r.r, r.limits)
	if err != nil {
		if errors.Is(err, frame.ErrFormat) {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	var next [frame.BlockSize]byte
	copy(next[:], body[len(body)-frame.BlockSize:])
	cipher.NewCBCDecrypter(r.block, r.iv[:]).CryptBlocks(body, body)
	r.iv = next

	payload, err := frame.Unpad(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	p, err := protocol.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return p, nil
}
