package protocol

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oro-os/oro-link-x86/internal/protocol/schema"
	"github.com/oro-os/oro-link-x86/internal/protocol/tlv"
)

// Decode parses one complete packet. Unrecognized tags decode to Unknown with
// a nil error; malformed bytes under a recognized tag return an error wrapping
// ErrMalformed.
func Decode(b []byte) (Packet, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrTruncated)
	}
	tag := b[0]
	if !schema.Known(tag) {
		payload := make([]byte, len(b)-1)
		copy(payload, b[1:])
		return Unknown{UnknownTag: tag, Payload: payload}, nil
	}

	fields, err := tlv.DecodeFields(b[1:])
	if err != nil {
		return nil, malformed(tag, err)
	}
	if err := schema.Validate(tag, fields); err != nil {
		return nil, malformed(tag, err)
	}

	p, err := decodeKnown(tag, fields)
	if err != nil {
		return nil, malformed(tag, err)
	}
	return p, nil
}

func decodeKnown(tag uint8, fields []tlv.Field) (Packet, error) {
	switch tag {
	case schema.TagLinkOnline:
		raw, err := mustField(fields, schema.FieldUID).AsBytes()
		if err != nil {
			return nil, err
		}
		if len(raw) != len(uuid.UUID{}) {
			return nil, fmt.Errorf("%w: len=%d", ErrInvalidUID, len(raw))
		}
		version, err := mustField(fields, schema.FieldVersion).AsString()
		if err != nil {
			return nil, err
		}
		var p LinkOnline
		copy(p.UID[:], raw)
		p.Version = version
		return p, nil

	case schema.TagSetScene:
		v, err := mustField(fields, schema.FieldScene).AsU8()
		if err != nil {
			return nil, err
		}
		scene := Scene(v)
		if !scene.valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEnum, scene)
		}
		return SetScene{Scene: scene}, nil

	case schema.TagSetPowerState:
		v, err := mustField(fields, schema.FieldPowerState).AsU8()
		if err != nil {
			return nil, err
		}
		state := PowerState(v)
		if !state.valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEnum, state)
		}
		return SetPowerState{State: state}, nil

	case schema.TagPressPower:
		return PressPower{}, nil

	case schema.TagPressReset:
		return PressReset{}, nil

	case schema.TagResetLink:
		return ResetLink{}, nil

	case schema.TagLog:
		v, err := mustField(fields, schema.FieldSeverity).AsU8()
		if err != nil {
			return nil, err
		}
		sev := Severity(v)
		if !sev.valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidEnum, sev)
		}
		msg, err := mustField(fields, schema.FieldMessage).AsString()
		if err != nil {
			return nil, err
		}
		return Log{Entry: LogEntry{Severity: sev, Message: msg}}, nil

	case schema.TagStartTestSession:
		total, err := mustField(fields, schema.FieldTotalTests).AsU32()
		if err != nil {
			return nil, err
		}
		p := StartTestSession{TotalTests: total}
		for id, dst := range map[uint16]*string{
			schema.FieldAuthor: &p.Author,
			schema.FieldTitle:  &p.Title,
			schema.FieldRefID:  &p.RefID,
		} {
			if *dst, err = mustField(fields, id).AsString(); err != nil {
				return nil, err
			}
		}
		return p, nil

	case schema.TagStartTest:
		name, err := mustField(fields, schema.FieldTestName).AsString()
		if err != nil {
			return nil, err
		}
		return StartTest{Name: name}, nil
	}
	return nil, fmt.Errorf("protocol: no decoder for tag 0x%02x", tag)
}

// mustField is only called after schema.Validate confirmed presence and type.
func mustField(fields []tlv.Field, id uint16) tlv.Field {
	f, _ := tlv.GetField(fields, id)
	return f
}
