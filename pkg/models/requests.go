package models

// Request is one of the four things a terminal UI can ask for.
// The concrete types are GetContacts, GetHistory, SendMessage and
// ToggleOnlineState.
type Request interface {
	Kind() RequestKind
}

type RequestKind string

const (
	KindGetContacts  RequestKind = "get_contacts"
	KindGetHistory   RequestKind = "get_history"
	KindSendMessage  RequestKind = "send_message"
	KindToggleOnline RequestKind = "toggle_online"
)

type GetContacts struct{}

type GetHistory struct {
	Partner Identity
}

type SendMessage struct {
	// RequestID lets a redelivered request be recognised. Optional.
	RequestID string
	To        Identity
	Text      string
}

type ToggleOnlineState struct{}

func (GetContacts) Kind() RequestKind       { return KindGetContacts }
func (GetHistory) Kind() RequestKind        { return KindGetHistory }
func (SendMessage) Kind() RequestKind       { return KindSendMessage }
func (ToggleOnlineState) Kind() RequestKind { return KindToggleOnline }

// UpdateType tells the UI which part of its state a UiState replaces.
type UpdateType string

const (
	UpdateNone        UpdateType = ""
	UpdateContacts    UpdateType = "contacts"
	UpdateHistory     UpdateType = "history"
	UpdateSendResult  UpdateType = "send_result"
	UpdateOnlineState UpdateType = "online_state"
	UpdatePopup       UpdateType = "popup"
)

// UiState is the view-model pushed to a terminal's UI.
type UiState struct {
	Type            UpdateType `json:"type"`
	Chats           []Contact  `json:"chats,omitempty"`
	CurrentOpenChat *Contact   `json:"current_chat,omitempty"`
	Messages        []Message  `json:"messages,omitempty"`
	IsOnline        bool       `json:"online"`
	Delivered       bool       `json:"delivered,omitempty"`
	PopupText       string     `json:"popup,omitempty"`
}

// IsEmpty reports whether the state carries no update at all.
func (s UiState) IsEmpty() bool {
	return s.Type == UpdateNone
}
