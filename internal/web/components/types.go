package components

// PresenceRow represents an identity in the presence table
type PresenceRow struct {
	Identity    string
	DisplayName string
	Online      bool
}

// TerminalRow represents an installed messenger terminal
type TerminalRow struct {
	ID       string
	Station  string
	Owner    string
	State    string
	ChatOpen string
}

// ConversationRow summarises one conversation on a station
type ConversationRow struct {
	Station  string
	A        PresenceRow
	B        PresenceRow
	Messages int
	LastSent string
}

// LoginPageData holds data for the login page
type LoginPageData struct {
	Error string
}
