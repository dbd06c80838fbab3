package hooks

import (
	"strings"

	"github.com/kabili207/pda-messenger/pkg/models"
)

const DefaultTopicRoot = "pda"

// Actions a terminal publishes.
const (
	ActionInstall  = "install"
	ActionRemove   = "remove"
	ActionIdentity = "identity"
	ActionRequest  = "request"
)

// Topics the server publishes.
const (
	ActionState    = "state"
	ActionPresence = "presence"
)

// Topic is a parsed messenger topic. Terminal is empty for station-wide
// topics.
type Topic struct {
	Station  models.StationID
	Terminal models.TerminalID
	Action   string
}

// IsTerminalAction reports whether the topic is something a terminal
// publishes about itself.
func (t Topic) IsTerminalAction() bool {
	if t.Terminal == "" {
		return false
	}
	switch t.Action {
	case ActionInstall, ActionRemove, ActionIdentity, ActionRequest:
		return true
	}
	return false
}

// ParseTopic splits <root>/<station>/<terminal>/<action> and
// <root>/<station>/presence. Wildcards are never accepted.
func ParseTopic(root, name string) (Topic, bool) {
	rest, ok := strings.CutPrefix(name, root+"/")
	if !ok || strings.ContainsAny(rest, "+#") {
		return Topic{}, false
	}
	parts := strings.Split(rest, "/")
	for _, p := range parts {
		if p == "" {
			return Topic{}, false
		}
	}
	switch len(parts) {
	case 2:
		if parts[1] != ActionPresence {
			return Topic{}, false
		}
		return Topic{Station: models.StationID(parts[0]), Action: ActionPresence}, true
	case 3:
		t := Topic{Station: models.StationID(parts[0]), Terminal: models.TerminalID(parts[1]), Action: parts[2]}
		if !t.IsTerminalAction() && t.Action != ActionState {
			return Topic{}, false
		}
		return t, true
	}
	return Topic{}, false
}

func TerminalTopic(root string, station models.StationID, terminal models.TerminalID, action string) string {
	return root + "/" + string(station) + "/" + string(terminal) + "/" + action
}

func PresenceTopic(root string, station models.StationID) string {
	return root + "/" + string(station) + "/" + ActionPresence
}
