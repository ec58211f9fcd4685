package channel

import (
	"crypto/aes"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/oro-os/oro-link-x86/internal/protocol/frame"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/curve25519"
)

// Side fixes which peer speaks first during negotiation.
type Side uint8

const (
	// Initiator writes its hello first. The link negotiates as Initiator.
	Initiator Side = 1
	// Responder reads the peer hello first. The daemon negotiates as Responder.
	Responder Side = 2
)

func (s Side) String() string {
	switch s {
	case Initiator:
		return "initiator"
	case Responder:
		return "responder"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

func (s Side) valid() bool { return s == Initiator || s == Responder }

// KeySize is the length of the session key and of X25519 scalars and points.
const KeySize = 32

const helloLen = 4 + 1 + KeySize

var helloMagic = [4]byte{'O', 'R', 'O', 0x01}

// Negotiate performs the key exchange over rw and returns the two halves of
// the encrypted channel. rng must be a cryptographically secure source.
func Negotiate(rw io.ReadWriter, rng io.Reader, side Side) (*Sender, *Receiver, error) {
	return NegotiateWithLimits(rw, rng, side, frame.DefaultLimits())
}

// NegotiateWithLimits is Negotiate with explicit frame limits.
func NegotiateWithLimits(rw io.ReadWriter, rng io.Reader, side Side, limits frame.Limits) (*Sender, *Receiver, error) {
	res, err := negotiate(rw, rng, side)
	if err != nil {
		return nil, nil, err
	}
	defer clear(res.key[:])

	block, err := aes.NewCipher(res.key[:])
	if err != nil {
		return nil, nil, &NegotiationError{Op: OpKey, Err: err}
	}
	log.Debug().
		Str("side", side.String()).
		Str("fingerprint", res.fingerprint).
		Msg("channel.Negotiate encryption key negotiated")
	return newSender(rw, block, limits), newReceiver(rw, block, limits), nil
}

// NegotiateConn negotiates over conn with a deadline covering the whole
// handshake, then clears the deadline. A peer that never speaks (for example
// two Responders facing each other) fails with a read error instead of
// blocking forever.
func NegotiateConn(conn net.Conn, rng io.Reader, side Side, timeout time.Duration) (*Sender, *Receiver, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return nil, nil, &NegotiationError{Op: OpRead, Err: err}
		}
	}
	tx, rx, err := Negotiate(conn, rng, side)
	if err != nil {
		return nil, nil, err
	}
	if timeout > 0 {
		if err := conn.SetDeadline(time.Time{}); err != nil {
			return nil, nil, &NegotiationError{Op: OpRead, Err: err}
		}
	}
	return tx, rx, nil
}

type negotiated struct {
	key         [KeySize]byte
	fingerprint string
}

func negotiate(rw io.ReadWriter, rng io.Reader, side Side) (negotiated, error) {
	if !side.valid() {
		return negotiated{}, &NegotiationError{Op: OpKey, Err: fmt.Errorf("%w: %s", ErrInvalidSide, side)}
	}

	var priv [KeySize]byte
	defer clear(priv[:])
	if _, err := io.ReadFull(rng, priv[:]); err != nil {
		return negotiated{}, &NegotiationError{Op: OpKey, Err: err}
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return negotiated{}, &NegotiationError{Op: OpKey, Err: err}
	}

	var peer []byte
	switch side {
	case Initiator:
		if err := writeHello(rw, side, pub); err != nil {
			return negotiated{}, err
		}
		if peer, err = readHello(rw, side); err != nil {
			return negotiated{}, err
		}
	case Responder:
		if peer, err = readHello(rw, side); err != nil {
			return negotiated{}, err
		}
		if err := writeHello(rw, side, pub); err != nil {
			return negotiated{}, err
		}
	}

	shared, err := curve25519.X25519(priv[:], peer)
	if err != nil {
		return negotiated{}, &NegotiationError{Op: OpKey, Err: fmt.Errorf("%w: %v", ErrWeakKey, err)}
	}
	defer clear(shared)

	var out negotiated
	// The shared secret keys the cipher as-is; there is no derivation step.
	copy(out.key[:], shared)
	if side == Initiator {
		out.fingerprint = Fingerprint(pub, peer)
	} else {
		out.fingerprint = Fingerprint(peer, pub)
	}
	return out, nil
}

func writeHello(w io.Writer, side Side, pub []byte) error {
	var hello [helloLen]byte
	copy(hello[0:4], helloMagic[:])
	hello[4] = byte(side)
	copy(hello[5:], pub)
	n, err := w.Write(hello[:])
	if err == nil && n != len(hello) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &NegotiationError{Op: OpWrite, Err: err}
	}
	return nil
}

func readHello(r io.Reader, local Side) ([]byte, error) {
	var hello [helloLen]byte
	if _, err := io.ReadFull(r, hello[:]); err != nil {
		return nil, &NegotiationError{Op: OpRead, Err: err}
	}
	if [4]byte(hello[0:4]) != helloMagic {
		return nil, &NegotiationError{Op: OpHello, Err: fmt.Errorf("%w: magic % x", ErrBadHello, hello[0:4])}
	}
	peerSide := Side(hello[4])
	if !peerSide.valid() {
		return nil, &NegotiationError{Op: OpHello, Err: fmt.Errorf("%w: %s", ErrBadHello, peerSide)}
	}
	if peerSide == local {
		return nil, &NegotiationError{Op: OpHello, Err: fmt.Errorf("%w: both %s", ErrSideMismatch, local)}
	}
	peer := make([]byte, KeySize)
	copy(peer, hello[5:])
	return peer, nil
}

// Fingerprint is a short BLAKE3 digest of both public keys in
// initiator-then-responder order. Both peers compute the same value, so it can
// be used to correlate a handshake across logs. It reveals nothing about the
// session key.
func Fingerprint(initiatorPub, responderPub []byte) string {
	h := blake3.New()
	_, _ = h.Write(initiatorPub)
	_, _ = h.Write(responderPub)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
