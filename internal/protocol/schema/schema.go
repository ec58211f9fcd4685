package schema

import (
	"fmt"

	"github.com/oro-os/oro-link-x86/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Packet tags from the link wire contract.
const (
	TagLinkOnline       uint8 = 0x01
	TagSetScene         uint8 = 0x02
	TagSetPowerState    uint8 = 0x03
	TagPressPower       uint8 = 0x04
	TagPressReset       uint8 = 0x05
	TagResetLink        uint8 = 0x06
	TagLog              uint8 = 0x07
	TagStartTestSession uint8 = 0x08
	TagStartTest        uint8 = 0x09
)

// Field IDs. IDs are scoped per tag; the same ID may mean different things
// under different tags.
const (
	FieldUID     uint16 = 1
	FieldVersion uint16 = 2

	FieldScene uint16 = 1

	FieldPowerState uint16 = 1

	FieldSeverity uint16 = 1
	FieldMessage  uint16 = 2

	FieldTotalTests uint16 = 1
	FieldAuthor     uint16 = 2
	FieldTitle      uint16 = 3
	FieldRefID      uint16 = 4

	FieldTestName uint16 = 1
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	Tag     uint8
	FieldID uint16
	Reason  string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: tag=0x%02x: %s", e.Tag, e.Reason)
	}
	return fmt.Sprintf("schema: tag=0x%02x field=%d: %s", e.Tag, e.FieldID, e.Reason)
}

var requirements = map[uint8][]Requirement{
	TagLinkOnline: {
		{FieldUID, tlv.TypeBytes},
		{FieldVersion, tlv.TypeString},
	},
	TagSetScene: {
		{FieldScene, tlv.TypeU8},
	},
	TagSetPowerState: {
		{FieldPowerState, tlv.TypeU8},
	},
	TagPressPower: {},
	TagPressReset: {},
	TagResetLink:  {},
	TagLog: {
		{FieldSeverity, tlv.TypeU8},
		{FieldMessage, tlv.TypeString},
	},
	TagStartTestSession: {
		{FieldTotalTests, tlv.TypeU32},
		{FieldAuthor, tlv.TypeString},
		{FieldTitle, tlv.TypeString},
		{FieldRefID, tlv.TypeString},
	},
	TagStartTest: {
		{FieldTestName, tlv.TypeString},
	},
}

// Known reports whether tag belongs to the closed packet set.
func Known(tag uint8) bool {
	_, ok := requirements[tag]
	return ok
}

// Validate enforces required fields and required field types for a tag.
// Unknown fields are ignored.
func Validate(tag uint8, fields []tlv.Field) error {
	reqs, ok := requirements[tag]
	if !ok {
		return ValidationError{Tag: tag, Reason: "unknown tag"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().Uint8("tag", tag).Uint16("field_id", req.ID).Msg("schema.Validate missing field")
			return ValidationError{Tag: tag, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint8("tag", tag).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{Tag: tag, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
