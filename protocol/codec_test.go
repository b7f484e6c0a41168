package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		typ     MessageType
		payload string
	}{
		{"register", TypeRegister, `{"deviceId":"phone-1","room":"ABCD","role":"mobile"}`},
		{"id", TypeID, `{"id":"conn-1"}`},
		{"hello", TypeHello, `{"deviceId":"phone-1","room":"ABCD","timestamp":1700000000}`},
		{"ping", TypePing, `{}`},
		{"pong", TypePong, `{}`},
		{"ready", TypeReady, `{"deviceId":"phone-1","timestamp":1700000000}`},
		{"chord change", TypeChordChange, `{"chord":"Am","timestamp":1700000000}`},
		{"strings pressed", TypeStringsPressed, `{"strings":[1,3,5]}`},
		{"strings released", TypeStringsReleased, `{"strings":[1,3,5]}`},
		{"fret update", TypeFretUpdate, `{"string":3,"fret":2}`},
		{"strum up", TypeStrumEvent, `{"direction":"up"}`},
		{"strum down", TypeStrumEvent, `{"direction":"down","timestamp":1700000000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Envelope{Type: tt.typ, Payload: json.RawMessage(tt.payload)}

			data, err := Encode(env)
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, env, decoded)
		})
	}
}

func TestDecode_Rejection(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"not json", `not json at all`, ErrMalformedJSON},
		{"truncated frame", `{"type":"PING"`, ErrMalformedJSON},
		{"bogus type", `{"type":"BOGUS"}`, ErrUnknownType},
		{"empty type", `{"payload":{}}`, ErrUnknownType},
		{"lowercase chord type", `{"type":"chord_change","payload":{"chord":"Am"}}`, ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecode_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"chord change without chord", `{"type":"CHORD_CHANGE","payload":{}}`},
		{"chord change without payload", `{"type":"CHORD_CHANGE"}`},
		{"strings missing array", `{"type":"STRINGS_PRESSED","payload":{}}`},
		{"string number out of range", `{"type":"STRINGS_PRESSED","payload":{"strings":[0,7]}}`},
		{"fret update array variant", `{"type":"FRET_UPDATE","payload":[0,2,2,1,0,0]}`},
		{"fret update string out of range", `{"type":"FRET_UPDATE","payload":{"string":7,"fret":1}}`},
		{"negative fret", `{"type":"FRET_UPDATE","payload":{"string":1,"fret":-1}}`},
		{"strum without direction", `{"type":"STRUM_EVENT","payload":{}}`},
		{"strum sideways", `{"type":"STRUM_EVENT","payload":{"direction":"sideways"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))

			var invalid *InvalidPayloadError
			require.ErrorAs(t, err, &invalid)
		})
	}
}

func TestDecode_PreservesSenderID(t *testing.T) {
	raw := `{"type":"CHORD_CHANGE","payload":{"chord":"G"},"senderId":"conn-9"}`

	env, err := Decode([]byte(raw))

	require.NoError(t, err)
	assert.Equal(t, "conn-9", env.SenderID)
}

func TestNormalizeRoom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abcd", "ABCD"},
		{"AB12", "AB12"},
		{" abcd ", "ABCD"},
		{"ABCDEF", "ABCDEF"},
		{"abc", ""},
		{"ABCDEFG", ""},
		{"AB-D", ""},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeRoom(tt.in), "input %q", tt.in)
	}
}

func TestIsDataPlane(t *testing.T) {
	assert.True(t, IsDataPlane(TypeChordChange))
	assert.True(t, IsDataPlane(TypeStrumEvent))
	assert.False(t, IsDataPlane(TypePing))
	assert.False(t, IsDataPlane(TypeRegister))
}

func TestDecode_UnknownTypeIsNotInvalidPayload(t *testing.T) {
	_, err := Decode([]byte(`{"type":"BOGUS","payload":{"chord":"Am"}}`))

	assert.ErrorIs(t, err, ErrUnknownType)
	var invalid *InvalidPayloadError
	assert.False(t, errors.As(err, &invalid))
}
