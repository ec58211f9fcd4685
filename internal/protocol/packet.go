package protocol

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/oro-os/oro-link-x86/internal/protocol/schema"
	"github.com/oro-os/oro-link-x86/internal/protocol/tlv"
)

// Packet is one message that may cross the negotiated channel. The set of
// implementations is closed; see the variants below.
type Packet interface {
	Tag() uint8
	Kind() string
	fields() ([]tlv.Field, error)
}

// Scene is the page shown on the rig's status display.
type Scene uint8

const (
	SceneLogo Scene = iota
	SceneLog
	SceneTest
)

func (s Scene) String() string {
	switch s {
	case SceneLogo:
		return "logo"
	case SceneLog:
		return "log"
	case SceneTest:
		return "test"
	default:
		return fmt.Sprintf("scene(%d)", uint8(s))
	}
}

func (s Scene) valid() bool { return s <= SceneTest }

// PowerState is the target power state of the device under test.
type PowerState uint8

const (
	PowerOff PowerState = iota
	PowerOn
)

func (p PowerState) String() string {
	switch p {
	case PowerOff:
		return "off"
	case PowerOn:
		return "on"
	default:
		return fmt.Sprintf("power(%d)", uint8(p))
	}
}

func (p PowerState) valid() bool { return p <= PowerOn }

// Severity grades a LogEntry.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
}

func (s Severity) valid() bool { return s <= SeverityError }

// LogEntry is a line pushed to the rig's log scene.
type LogEntry struct {
	Severity Severity
	Message  string
}

func Info(msg string) LogEntry  { return LogEntry{Severity: SeverityInfo, Message: msg} }
func Warn(msg string) LogEntry  { return LogEntry{Severity: SeverityWarn, Message: msg} }
func Error(msg string) LogEntry { return LogEntry{Severity: SeverityError, Message: msg} }

// LinkOnline is the first packet a link sends after negotiation.
type LinkOnline struct {
	UID     uuid.UUID
	Version string
}

// UIDHex renders the uid as upper-case hex without separators.
func (p LinkOnline) UIDHex() string {
	return strings.ToUpper(hex.EncodeToString(p.UID[:]))
}

type SetScene struct{ Scene Scene }

type SetPowerState struct{ State PowerState }

type PressPower struct{}

type PressReset struct{}

// ResetLink ends the current test session on the link.
type ResetLink struct{}

type Log struct{ Entry LogEntry }

type StartTestSession struct {
	TotalTests uint32
	Author     string
	Title      string
	RefID      string
}

type StartTest struct{ Name string }

// Unknown carries a tag this build does not recognize. It is a valid decode
// result but never a valid transition.
type Unknown struct {
	UnknownTag uint8
	Payload    []byte
}

func (LinkOnline) Tag() uint8       { return schema.TagLinkOnline }
func (SetScene) Tag() uint8         { return schema.TagSetScene }
func (SetPowerState) Tag() uint8    { return schema.TagSetPowerState }
func (PressPower) Tag() uint8       { return schema.TagPressPower }
func (PressReset) Tag() uint8       { return schema.TagPressReset }
func (ResetLink) Tag() uint8        { return schema.TagResetLink }
func (Log) Tag() uint8              { return schema.TagLog }
func (StartTestSession) Tag() uint8 { return schema.TagStartTestSession }
func (StartTest) Tag() uint8        { return schema.TagStartTest }
func (p Unknown) Tag() uint8        { return p.UnknownTag }

func (LinkOnline) Kind() string       { return "link_online" }
func (SetScene) Kind() string         { return "set_scene" }
func (SetPowerState) Kind() string    { return "set_power_state" }
func (PressPower) Kind() string       { return "press_power" }
func (PressReset) Kind() string       { return "press_reset" }
func (ResetLink) Kind() string        { return "reset_link" }
func (Log) Kind() string              { return "log" }
func (StartTestSession) Kind() string { return "start_test_session" }
func (StartTest) Kind() string        { return "start_test" }
func (Unknown) Kind() string          { return "unknown" }

func (p LinkOnline) fields() ([]tlv.Field, error) {
	return []tlv.Field{
		tlv.Bytes(schema.FieldUID, p.UID[:]),
		tlv.String(schema.FieldVersion, p.Version),
	}, nil
}

func (p SetScene) fields() ([]tlv.Field, error) {
	if !p.Scene.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnum, p.Scene)
	}
	return []tlv.Field{tlv.U8(schema.FieldScene, uint8(p.Scene))}, nil
}

func (p SetPowerState) fields() ([]tlv.Field, error) {
	if !p.State.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnum, p.State)
	}
	return []tlv.Field{tlv.U8(schema.FieldPowerState, uint8(p.State))}, nil
}

func (PressPower) fields() ([]tlv.Field, error) { return nil, nil }
func (PressReset) fields() ([]tlv.Field, error) { return nil, nil }
func (ResetLink) fields() ([]tlv.Field, error)  { return nil, nil }

func (p Log) fields() ([]tlv.Field, error) {
	if !p.Entry.Severity.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnum, p.Entry.Severity)
	}
	return []tlv.Field{
		tlv.U8(schema.FieldSeverity, uint8(p.Entry.Severity)),
		tlv.String(schema.FieldMessage, p.Entry.Message),
	}, nil
}

func (p StartTestSession) fields() ([]tlv.Field, error) {
	return []tlv.Field{
		tlv.U32(schema.FieldTotalTests, p.TotalTests),
		tlv.String(schema.FieldAuthor, p.Author),
		tlv.String(schema.FieldTitle, p.Title),
		tlv.String(schema.FieldRefID, p.RefID),
	}, nil
}

func (p StartTest) fields() ([]tlv.Field, error) {
	return []tlv.Field{tlv.String(schema.FieldTestName, p.Name)}, nil
}

// Unknown packets are re-encoded verbatim by AppendEncode; fields is unused.
func (Unknown) fields() ([]tlv.Field, error) { return nil, nil }
