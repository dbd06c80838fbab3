package models

// Identity is a stable reference to a crew member's credential (an id card).
// It stays the same no matter which terminal currently carries it.
type Identity string

// StationID scopes presence and history. Nothing crosses a station boundary.
type StationID string

// TerminalID identifies a single installed messenger program.
type TerminalID string

// Contact pairs an identity with the name printed on its credential.
type Contact struct {
	Identity    Identity `json:"identity"`
	DisplayName string   `json:"name"`
}

func (c Contact) GetDisplayName() string {
	if c.DisplayName == "" {
		return "Unknown"
	}
	return c.DisplayName
}
