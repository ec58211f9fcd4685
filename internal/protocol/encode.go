package protocol

import "github.com/oro-os/oro-link-x86/internal/protocol/tlv"

// Encode returns the wire form of p: tag byte followed by TLV fields.
func Encode(p Packet) ([]byte, error) {
	return AppendEncode(nil, p)
}

// AppendEncode appends the wire form of p to dst and returns the extended
// buffer. On error dst is returned unchanged.
func AppendEncode(dst []byte, p Packet) ([]byte, error) {
	if p == nil {
		return dst, ErrNilPacket
	}
	if u, ok := p.(Unknown); ok {
		out := append(dst, u.UnknownTag)
		return append(out, u.Payload...), nil
	}
	fields, err := p.fields()
	if err != nil {
		return dst, err
	}
	out := append(dst, p.Tag())
	for _, f := range fields {
		out = tlv.AppendField(out, f)
	}
	return out, nil
}
