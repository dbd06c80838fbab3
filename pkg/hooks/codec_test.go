package hooks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kabili207/pda-messenger/pkg/models"
)

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    models.Request
		err     error
	}{
		{"contacts", `{"type":"get_contacts"}`, models.GetContacts{}, nil},
		{"history", `{"type":"get_history","partner":"bob"}`, models.GetHistory{Partner: "bob"}, nil},
		{"send", `{"type":"send_message","to":"bob","text":"hi","request_id":"r1"}`, models.SendMessage{RequestID: "r1", To: "bob", Text: "hi"}, nil},
		{"toggle", `{"type":"toggle_online"}`, models.ToggleOnlineState{}, nil},
		{"history without partner", `{"type":"get_history"}`, nil, ErrMalformedFields},
		{"send without receiver", `{"type":"send_message","text":"hi"}`, nil, ErrMalformedFields},
		{"unknown", `{"type":"self_destruct"}`, nil, ErrUnknownRequest},
		{"missing type", `{}`, nil, ErrUnknownRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest([]byte(tt.payload))
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeRequest([]byte("not json"))
	require.Error(t, err)
}

func TestEncodeRequestIsReadBack(t *testing.T) {
	for _, req := range []models.Request{
		models.GetContacts{},
		models.GetHistory{Partner: "bob"},
		models.SendMessage{To: "bob", Text: "hello there"},
		models.ToggleOnlineState{},
	} {
		payload, err := EncodeRequest(req)
		require.NoError(t, err)
		got, err := DecodeRequest(payload)
		require.NoError(t, err)
		require.Equal(t, req, got)
	}
}

func TestDecodeIdentity(t *testing.T) {
	ev, err := DecodeIdentity("station-a", "t1", []byte(`{"inserted":true,"identity":"alice","name":"Alice"}`))
	require.NoError(t, err)
	require.Equal(t, models.IdentityChanged{
		Terminal: "t1",
		Station:  "station-a",
		Inserted: true,
		Identity: &models.Contact{Identity: "alice", DisplayName: "Alice"},
	}, ev)

	ev, err = DecodeIdentity("station-a", "t1", []byte(`{"inserted":false}`))
	require.NoError(t, err)
	require.False(t, ev.Inserted)
	require.Nil(t, ev.Identity)

	_, err = DecodeIdentity("station-a", "t1", []byte(`{"inserted":true}`))
	require.ErrorIs(t, err, ErrMalformedFields)

	payload, err := EncodeIdentity(nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"inserted":false}`, string(payload))
}
