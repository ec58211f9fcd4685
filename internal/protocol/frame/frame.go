package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderLen is the length prefix carried in the clear before each
	// encrypted body.
	HeaderLen = 2
	// BlockSize is the cipher block size every body is padded to.
	BlockSize = 16
	// innerLen is the plaintext length prefix inside the padded body.
	innerLen = 2
)

var (
	ErrFormat          = errors.New("frame: invalid frame")
	ErrEmptyBody       = fmt.Errorf("%w: empty body", ErrFormat)
	ErrUnaligned       = fmt.Errorf("%w: body not block aligned", ErrFormat)
	ErrBodyTooLarge    = fmt.Errorf("%w: body too large", ErrFormat)
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrFormat)
	ErrBadInnerLength  = fmt.Errorf("%w: inner length exceeds body", ErrFormat)
	ErrBadPadding      = fmt.Errorf("%w: non-zero padding", ErrFormat)
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxBodyBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxBodyBytes: 16 * 1024}
}

// normalized clamps MaxBodyBytes to what the u16 prefix can express, rounded
// down to a whole number of blocks.
func (l Limits) normalized() Limits {
	max := l.MaxBodyBytes
	if max <= 0 || max > 0xFFFF {
		max = 0xFFFF
	}
	max -= max % BlockSize
	return Limits{MaxBodyBytes: max}
}

// MaxPayload is the largest plaintext payload that fits in one frame.
func (l Limits) MaxPayload() int {
	return l.normalized().MaxBodyBytes - innerLen
}

// Pad builds the plaintext body for payload: inner length, payload, then zero
// bytes up to the next block boundary.
func Pad(payload []byte, limits Limits) ([]byte, error) {
	if len(payload) > limits.MaxPayload() {
		return nil, ErrPayloadTooLarge
	}
	size := innerLen + len(payload)
	if rem := size % BlockSize; rem != 0 {
		size += BlockSize - rem
	}
	body := make([]byte, size)
	binary.BigEndian.PutUint16(body[0:innerLen], uint16(len(payload)))
	copy(body[innerLen:], payload)
	return body, nil
}

// Unpad returns the payload carried in a decrypted body. The returned slice
// aliases body.
func Unpad(body []byte) ([]byte, error) {
	if len(body) < BlockSize || len(body)%BlockSize != 0 {
		return nil, ErrUnaligned
	}
	n := int(binary.BigEndian.Uint16(body[0:innerLen]))
	if n > len(body)-innerLen {
		return nil, ErrBadInnerLength
	}
	end := innerLen + n
	// Padding is never more than one block; anything longer means the
	// length prefix decrypted to garbage.
	if len(body)-end >= BlockSize {
		return nil, ErrBadInnerLength
	}
	for _, b := range body[end:] {
		if b != 0 {
			return nil, ErrBadPadding
		}
	}
	return body[innerLen:end], nil
}

// ReadFrame reads one length-prefixed body. Stream errors are returned as-is;
// envelope violations wrap ErrFormat.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	limits = limits.normalized()
	var head [HeaderLen]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(head[:]))
	if err := checkBodyLen(n, limits); err != nil {
		return nil, err
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// WriteFrame writes the prefix and body in a single Write call so a frame is
// never split by a concurrent writer on the same stream.
func WriteFrame(w io.Writer, body []byte, limits Limits) error {
	limits = limits.normalized()
	if err := checkBodyLen(len(body), limits); err != nil {
		return err
	}
	buf := make([]byte, HeaderLen+len(body))
	binary.BigEndian.PutUint16(buf[0:HeaderLen], uint16(len(body)))
	copy(buf[HeaderLen:], body)
	_, err := w.Write(buf)
	return err
}

func checkBodyLen(n int, limits Limits) error {
	switch {
	case n == 0:
		return ErrEmptyBody
	case n%BlockSize != 0:
		return ErrUnaligned
	case n > limits.MaxBodyBytes:
		return ErrBodyTooLarge
	}
	return nil
}
