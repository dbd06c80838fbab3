package models

import (
	"errors"
	"sync"
)

var ErrNotBound = errors.New("terminal has no identity bound")

// TerminalState is the externally visible state of a terminal.
type TerminalState int

const (
	StateUnbound TerminalState = iota
	StateOffline
	StateOnline
)

func (s TerminalState) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateOffline:
		return "offline"
	case StateOnline:
		return "online"
	}
	return "unknown"
}

// Terminal is the per-device state of an installed messenger program.
type Terminal struct {
	ID TerminalID

	mu       sync.RWMutex
	station  StationID
	owner    *Contact
	online   bool
	chatOpen Identity
}

func NewTerminal(id TerminalID, station StationID) *Terminal {
	return &Terminal{ID: id, station: station}
}

// TerminalView is a consistent copy of a terminal's fields.
type TerminalView struct {
	ID       TerminalID
	Station  StationID
	Owner    *Contact
	Online   bool
	ChatOpen Identity
}

func (v TerminalView) State() TerminalState {
	switch {
	case v.Owner == nil:
		return StateUnbound
	case v.Online:
		return StateOnline
	default:
		return StateOffline
	}
}

// IsReachableAs reports whether the terminal can receive messages for id on station.
func (v TerminalView) IsReachableAs(id Identity, station StationID) bool {
	return v.Owner != nil && v.Owner.Identity == id && v.Station == station && v.Online
}

func (t *Terminal) View() TerminalView {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view()
}

// view must be called with mu held.
func (t *Terminal) view() TerminalView {
	v := TerminalView{
		ID:       t.ID,
		Station:  t.station,
		Online:   t.online,
		ChatOpen: t.chatOpen,
	}
	if t.owner != nil {
		owner := *t.owner
		v.Owner = &owner
	}
	return v
}

// Move reassigns the owning station and returns the terminal as it was
// before the move.
func (t *Terminal) Move(station StationID) (before TerminalView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	before = t.view()
	t.station = station
	return before
}

// Bind attaches a credential. The terminal always lands offline; going
// online takes an explicit toggle. The previous owner, if any, is returned
// together with whether it was online.
func (t *Terminal) Bind(c Contact) (prev *Contact, wasOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, wasOnline = t.owner, t.online
	t.owner = &c
	t.online = false
	t.chatOpen = ""
	return prev, wasOnline
}

// Unbind detaches the credential and returns the previous owner.
func (t *Terminal) Unbind() (prev *Contact, wasOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, wasOnline = t.owner, t.online
	t.owner = nil
	t.online = false
	t.chatOpen = ""
	return prev, wasOnline
}

// ToggleOnline flips the online flag of a bound terminal.
func (t *Terminal) ToggleOnline() (TerminalView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.owner == nil {
		return TerminalView{}, ErrNotBound
	}
	t.online = !t.online
	return t.view(), nil
}

// ForceOffline clears the online flag and reports whether it was set.
func (t *Terminal) ForceOffline() (owner *Contact, wasOnline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasOnline = t.online
	t.online = false
	if t.owner != nil {
		c := *t.owner
		owner = &c
	}
	return owner, wasOnline
}

// OpenChat records which conversation the terminal's UI is showing.
func (t *Terminal) OpenChat(partner Identity) {
	t.mu.Lock()
	t.chatOpen = partner
	t.mu.Unlock()
}

// CloseChat returns the UI to the contact list.
func (t *Terminal) CloseChat() {
	t.OpenChat("")
}
