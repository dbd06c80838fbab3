package models

// PresenceEntry is a cached snapshot of where an identity is reachable.
// Entries are replaced as a whole, never modified in place.
type PresenceEntry struct {
	Identity    Identity  `json:"identity"`
	DisplayName string    `json:"name"`
	Station     StationID `json:"station"`
	Online      bool      `json:"online"`
	// Seq orders updates for the same identity. Zero skips the ordering check.
	Seq uint64 `json:"seq"`
}

func (p PresenceEntry) Contact() Contact {
	return Contact{Identity: p.Identity, DisplayName: p.DisplayName}
}

// PresenceChanged is broadcast to every terminal on a station whenever an
// identity goes on or offline there.
type PresenceChanged struct {
	Station     StationID `json:"station"`
	Identity    Identity  `json:"identity"`
	DisplayName string    `json:"name,omitempty"`
	Online      bool      `json:"online"`
}
