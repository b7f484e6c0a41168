package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType is the closed set of envelope types the relay understands.
// Names mirror what the clients already send on the wire.
type MessageType string

const (
	TypeRegister        MessageType = "register"
	TypeID              MessageType = "id"
	TypeHello           MessageType = "HELLO"
	TypePing            MessageType = "PING"
	TypePong            MessageType = "PONG"
	TypeReady           MessageType = "READY"
	TypeChordChange     MessageType = "CHORD_CHANGE"
	TypeStringsPressed  MessageType = "STRINGS_PRESSED"
	TypeStringsReleased MessageType = "STRINGS_RELEASED"
	TypeFretUpdate      MessageType = "FRET_UPDATE"
	TypeStrumEvent      MessageType = "STRUM_EVENT"
)

// Envelope is the {type, payload} wrapper around every relay message.
// Payload keeps the raw bytes so forwarding is byte-faithful.
type Envelope struct {
	Type     MessageType     `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SenderID string          `json:"senderId,omitempty"`
}

var (
	ErrMalformedJSON = errors.New("malformed json frame")
	ErrUnknownType   = errors.New("unknown message type")
)

// InvalidPayloadError reports a payload that does not match the shape
// required for its message type.
type InvalidPayloadError struct {
	Type   MessageType
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid payload for %s: %s", e.Type, e.Reason)
}

// Payload shapes, one per data-plane or registration type.

type RegisterPayload struct {
	DeviceID string `json:"deviceId,omitempty"`
	ID       string `json:"id,omitempty"`
	Room     string `json:"room,omitempty"`
	Role     string `json:"role,omitempty"`
}

type HelloPayload struct {
	DeviceID  string `json:"deviceId"`
	Room      string `json:"room"`
	Role      string `json:"role,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type ReadyPayload struct {
	DeviceID  string `json:"deviceId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type ChordChangePayload struct {
	Chord     string `json:"chord"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type StringsPayload struct {
	Strings   []int `json:"strings"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

// FretUpdatePayload is the canonical per-string form. String is 1-based
// (1 = high E, 6 = low E), Fret 0 means open.
type FretUpdatePayload struct {
	String    int   `json:"string"`
	Fret      int   `json:"fret"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

type StrumEventPayload struct {
	Direction string `json:"direction"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type IDPayload struct {
	ID string `json:"id"`
}

// Decode parses and validates a single text frame. It is pure: decode
// errors are reported to the caller, which drops the frame and keeps the
// connection open.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, ErrMalformedJSON
	}
	if !knownType(env.Type) {
		return Envelope{}, ErrUnknownType
	}
	if err := validatePayload(env.Type, env.Payload); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Encode is the structural inverse of Decode, lossless for valid envelopes.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func knownType(t MessageType) bool {
	switch t {
	case TypeRegister, TypeID, TypeHello, TypePing, TypePong, TypeReady,
		TypeChordChange, TypeStringsPressed, TypeStringsReleased,
		TypeFretUpdate, TypeStrumEvent:
		return true
	}
	return false
}

// IsDataPlane reports whether the type is forwarded to peers rather than
// handled by the relay itself.
func IsDataPlane(t MessageType) bool {
	switch t {
	case TypeChordChange, TypeStringsPressed, TypeStringsReleased,
		TypeFretUpdate, TypeStrumEvent:
		return true
	}
	return false
}

func validatePayload(t MessageType, raw json.RawMessage) error {
	fail := func(reason string) error {
		return &InvalidPayloadError{Type: t, Reason: reason}
	}

	switch t {
	case TypePing, TypePong, TypeReady, TypeID, TypeRegister, TypeHello:
		// Control-plane payloads are permissive: PING/PONG carry nothing,
		// register/HELLO fields are checked by the handler against the
		// connection's classification state.
		return nil

	case TypeChordChange:
		var p ChordChangePayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.Chord == "" {
			return fail("missing chord")
		}

	case TypeStringsPressed, TypeStringsReleased:
		var p StringsPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.Strings == nil {
			return fail("missing strings array")
		}
		for _, s := range p.Strings {
			if s < 1 || s > 6 {
				return fail(fmt.Sprintf("string %d out of range", s))
			}
		}

	case TypeFretUpdate:
		var p FretUpdatePayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.String < 1 || p.String > 6 {
			return fail("string out of range")
		}
		if p.Fret < 0 {
			return fail("negative fret")
		}

	case TypeStrumEvent:
		var p StrumEventPayload
		if err := strictUnmarshal(raw, &p); err != nil {
			return fail(err.Error())
		}
		if p.Direction != "up" && p.Direction != "down" {
			return fail("direction must be up or down")
		}
	}
	return nil
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(raw, v)
}

const (
	roomMinLen = 4
	roomMaxLen = 6
)

// NormalizeRoom upper-cases a room code and validates the 4-6 character
// alphanumeric convention. Returns "" if the code is unusable.
func NormalizeRoom(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < roomMinLen || len(code) > roomMaxLen {
		return ""
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return code
}
