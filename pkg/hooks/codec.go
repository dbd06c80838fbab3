package hooks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kabili207/pda-messenger/pkg/models"
)

var (
	ErrUnknownRequest  = errors.New("unknown request type")
	ErrMalformedFields = errors.New("request is missing required fields")
)

// requestEnvelope is the wire form of every terminal request.
type requestEnvelope struct {
	Type      models.RequestKind `json:"type"`
	Partner   models.Identity    `json:"partner,omitempty"`
	To        models.Identity    `json:"to,omitempty"`
	Text      string             `json:"text,omitempty"`
	RequestID string             `json:"request_id,omitempty"`
}

type identityPayload struct {
	Inserted bool            `json:"inserted"`
	Identity models.Identity `json:"identity,omitempty"`
	Name     string          `json:"name,omitempty"`
}

// DecodeRequest turns a request payload into one of the request types.
func DecodeRequest(payload []byte) (models.Request, error) {
	var env requestEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	switch env.Type {
	case models.KindGetContacts:
		return models.GetContacts{}, nil
	case models.KindGetHistory:
		if env.Partner == "" {
			return nil, fmt.Errorf("%s: %w", env.Type, ErrMalformedFields)
		}
		return models.GetHistory{Partner: env.Partner}, nil
	case models.KindSendMessage:
		if env.To == "" {
			return nil, fmt.Errorf("%s: %w", env.Type, ErrMalformedFields)
		}
		return models.SendMessage{RequestID: env.RequestID, To: env.To, Text: env.Text}, nil
	case models.KindToggleOnline:
		return models.ToggleOnlineState{}, nil
	}
	return nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownRequest)
}

// EncodeRequest is the inverse of DecodeRequest.
func EncodeRequest(req models.Request) ([]byte, error) {
	env := requestEnvelope{}
	switch r := req.(type) {
	case models.GetContacts, models.ToggleOnlineState:
	case models.GetHistory:
		env.Partner = r.Partner
	case models.SendMessage:
		env.To, env.Text, env.RequestID = r.To, r.Text, r.RequestID
	default:
		return nil, fmt.Errorf("%T: %w", req, ErrUnknownRequest)
	}
	env.Type = req.Kind()
	return json.Marshal(env)
}

// DecodeIdentity reads an identity payload published for terminal.
func DecodeIdentity(station models.StationID, terminal models.TerminalID, payload []byte) (models.IdentityChanged, error) {
	var p identityPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return models.IdentityChanged{}, fmt.Errorf("decoding identity: %w", err)
	}
	ev := models.IdentityChanged{Terminal: terminal, Station: station, Inserted: p.Inserted}
	if p.Inserted {
		if p.Identity == "" {
			return models.IdentityChanged{}, fmt.Errorf("identity: %w", ErrMalformedFields)
		}
		ev.Identity = &models.Contact{Identity: p.Identity, DisplayName: p.Name}
	}
	return ev, nil
}

// EncodeIdentity builds an identity payload. A nil contact means the
// credential was removed.
func EncodeIdentity(c *models.Contact) ([]byte, error) {
	p := identityPayload{Inserted: c != nil}
	if c != nil {
		p.Identity, p.Name = c.Identity, c.DisplayName
	}
	return json.Marshal(p)
}

// DecodeState reads a state pushed to a terminal.
func DecodeState(payload []byte) (models.UiState, error) {
	var s models.UiState
	err := json.Unmarshal(payload, &s)
	return s, err
}

// DecodePresence reads a station presence broadcast.
func DecodePresence(payload []byte) (models.PresenceChanged, error) {
	var p models.PresenceChanged
	err := json.Unmarshal(payload, &p)
	return p, err
}
