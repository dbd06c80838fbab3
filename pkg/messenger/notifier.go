package messenger

import "github.com/kabili207/pda-messenger/pkg/models"

// Notifier carries state the router pushes on its own initiative: new
// message alerts for a receiver and presence changes for a whole station.
type Notifier interface {
	PushState(terminal models.TerminalID, state models.UiState)
	BroadcastPresence(change models.PresenceChanged)
}

type nopNotifier struct{}

func (nopNotifier) PushState(models.TerminalID, models.UiState) {}
func (nopNotifier) BroadcastPresence(models.PresenceChanged) {}

// Notifiers fans out to several notifiers in order.
type Notifiers []Notifier

func (n Notifiers) PushState(terminal models.TerminalID, state models.UiState) {
	for _, x := range n {
		x.PushState(terminal, state)
	}
}

func (n Notifiers) BroadcastPresence(change models.PresenceChanged) {
	for _, x := range n {
		x.BroadcastPresence(change)
	}
}
