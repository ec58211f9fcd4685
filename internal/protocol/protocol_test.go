package protocol

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/oro-os/oro-link-x86/internal/protocol/schema"
	"github.com/oro-os/oro-link-x86/internal/protocol/tlv"
	"github.com/oro-os/oro-link-x86/internal/testutil/testlog"
)

func allVariants() []Packet {
	var uid uuid.UUID
	for i := range uid {
		uid[i] = 0xAA
	}
	return []Packet{
		LinkOnline{UID: uid, Version: "1.0.0"},
		LinkOnline{},
		SetScene{Scene: SceneLogo},
		SetScene{Scene: SceneLog},
		SetScene{Scene: SceneTest},
		SetPowerState{State: PowerOn},
		SetPowerState{State: PowerOff},
		PressPower{},
		PressReset{},
		ResetLink{},
		Log{Entry: Info("booting machine...")},
		Log{Entry: Warn("")},
		Log{Entry: Error("failed to connect")},
		StartTestSession{
			TotalTests: 1337,
			Author:     "Josh Junon",
			Title:      "test: daemon protocol",
			RefID:      "abcd1234abcd1234abcd1234abcd1234",
		},
		StartTest{Name: "test_protocol_proc_macro"},
		StartTest{Name: "ünïcode ✓"},
		Unknown{UnknownTag: 0xF0, Payload: []byte{1, 2, 3}},
		Unknown{UnknownTag: 0x7F},
	}
}

func TestRoundTripEveryVariant(t *testing.T) {
	testlog.Start(t)
	for _, p := range allVariants() {
		b, err := Encode(p)
		if err != nil {
			t.Fatalf("encode %s: %v", p.Kind(), err)
		}
		if b[0] != p.Tag() {
			t.Fatalf("encode %s: tag got=0x%02x want=0x%02x", p.Kind(), b[0], p.Tag())
		}
		got, err := Decode(b)
		if err != nil {
			t.Fatalf("decode %s: %v", p.Kind(), err)
		}
		if diff := cmp.Diff(p, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("round trip %s mismatch (-want +got):\n%s", p.Kind(), diff)
		}
	}
}

func TestAppendEncodeKeepsPrefix(t *testing.T) {
	testlog.Start(t)
	prefix := []byte{0xDE, 0xAD}
	out, err := AppendEncode(prefix, StartTest{Name: "x"})
	if err != nil {
		t.Fatalf("append encode: %v", err)
	}
	if out[0] != 0xDE || out[1] != 0xAD || out[2] != schema.TagStartTest {
		t.Fatalf("unexpected prefix bytes: % x", out[:3])
	}
}

func TestDecodeTruncatedKnownTagsFail(t *testing.T) {
	testlog.Start(t)
	for _, p := range allVariants() {
		if _, ok := p.(Unknown); ok {
			continue
		}
		b, err := Encode(p)
		if err != nil {
			t.Fatalf("encode %s: %v", p.Kind(), err)
		}
		// Every known tag with fields has required fields, so every strict
		// prefix is either cut mid-field or missing a field.
		for n := 0; n < len(b); n++ {
			got, err := Decode(b[:n])
			if err == nil {
				t.Fatalf("decode %s prefix=%d: expected error, got %#v", p.Kind(), n, got)
			}
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("decode %s prefix=%d: expected ErrMalformed, got %v", p.Kind(), n, err)
			}
		}
	}
}

func TestDecodeEmptyIsTruncated(t *testing.T) {
	testlog.Start(t)
	_, err := Decode(nil)
	if !errors.Is(err, ErrTruncated) || !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeUnknownTagIsNotAnError(t *testing.T) {
	testlog.Start(t)
	got, err := Decode([]byte{0xEE, 0x01, 0x02})
	if err != nil {
		t.Fatalf("decode unknown: %v", err)
	}
	u, ok := got.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", got)
	}
	if u.UnknownTag != 0xEE || len(u.Payload) != 2 {
		t.Fatalf("unexpected unknown packet: %+v", u)
	}
}

func TestDecodeRejectsInvalidEnums(t *testing.T) {
	testlog.Start(t)
	cases := [][]byte{
		append([]byte{schema.TagSetScene}, tlv.EncodeField(tlv.U8(schema.FieldScene, 9))...),
		append([]byte{schema.TagSetPowerState}, tlv.EncodeField(tlv.U8(schema.FieldPowerState, 2))...),
		append([]byte{schema.TagLog}, tlv.EncodeFields([]tlv.Field{
			tlv.U8(schema.FieldSeverity, 7),
			tlv.String(schema.FieldMessage, "x"),
		})...),
	}
	for i, b := range cases {
		_, err := Decode(b)
		if !errors.Is(err, ErrInvalidEnum) || !errors.Is(err, ErrMalformed) {
			t.Fatalf("case %d: expected ErrInvalidEnum, got %v", i, err)
		}
	}
}

func TestDecodeRejectsShortUID(t *testing.T) {
	testlog.Start(t)
	b := append([]byte{schema.TagLinkOnline}, tlv.EncodeFields([]tlv.Field{
		tlv.Bytes(schema.FieldUID, []byte{1, 2, 3}),
		tlv.String(schema.FieldVersion, "1.0.0"),
	})...)
	_, err := Decode(b)
	if !errors.Is(err, ErrInvalidUID) {
		t.Fatalf("expected ErrInvalidUID, got %v", err)
	}
}

func TestDecodeMissingFieldIsMalformed(t *testing.T) {
	testlog.Start(t)
	_, err := Decode([]byte{schema.TagStartTest})
	var ve schema.ValidationError
	if !errors.As(err, &ve) || !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected schema validation error, got %v", err)
	}
}

func TestEncodeRejectsInvalidEnum(t *testing.T) {
	testlog.Start(t)
	if _, err := Encode(SetScene{Scene: Scene(42)}); !errors.Is(err, ErrInvalidEnum) {
		t.Fatalf("expected ErrInvalidEnum, got %v", err)
	}
	if _, err := Encode(nil); !errors.Is(err, ErrNilPacket) {
		t.Fatalf("expected ErrNilPacket, got %v", err)
	}
}

func TestUIDHexIsUpperCase(t *testing.T) {
	testlog.Start(t)
	var uid uuid.UUID
	uid[0] = 0xab
	uid[15] = 0x01
	got := LinkOnline{UID: uid}.UIDHex()
	if got != "AB000000000000000000000000000001" {
		t.Fatalf("unexpected hex uid: %s", got)
	}
}
