package hooks

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/kabili207/pda-messenger/pkg/auth"
	"github.com/kabili207/pda-messenger/pkg/messenger"
	"github.com/kabili207/pda-messenger/pkg/models"
	"github.com/kabili207/pda-messenger/pkg/store"
)

// Publisher is the part of *mqtt.Server the hook publishes through.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool, qos byte) error
}

// MessengerHookOptions contains configuration settings for the hook.
type MessengerHookOptions struct {
	Server    Publisher
	Router    *messenger.Router
	TopicRoot string
}

var _ messenger.Notifier = (*MessengerHook)(nil)

// MessengerHook connects terminals on the broker to the message router.
// The MQTT client ID of a terminal is its terminal ID.
type MessengerHook struct {
	mqtt.HookBase
	config *MessengerHookOptions

	// client ID -> details, filled on authentication
	knownClients map[string]*clientDetails
	clientLock   sync.RWMutex
}

type clientDetails struct {
	UserName string
	// Account is nil when the broker runs without an account store.
	Account *models.Account
	// conn is the connection that authenticated; a reconnect with the same
	// client ID replaces it.
	conn *mqtt.Client
}

func (c *clientDetails) canUseStation(station models.StationID) bool {
	return c.Account == nil || c.Account.CanUseStation(station)
}

func (c *clientDetails) isSuperuser() bool {
	return c.Account != nil && c.Account.IsSuperuser
}

func (h *MessengerHook) ID() string {
	return "pda-messenger"
}

func (h *MessengerHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnACLCheck,
		mqtt.OnDisconnect,
		mqtt.OnPublish,
	}, []byte{b})
}

func (h *MessengerHook) Init(config any) error {
	if _, ok := config.(*MessengerHookOptions); !ok && config != nil {
		return mqtt.ErrInvalidConfigType
	}
	if config == nil {
		return mqtt.ErrInvalidConfigType
	}

	h.config = config.(*MessengerHookOptions)
	if h.config.Server == nil || h.config.Router == nil {
		return mqtt.ErrInvalidConfigType
	}
	if h.config.TopicRoot == "" {
		h.config.TopicRoot = DefaultTopicRoot
	}
	h.knownClients = make(map[string]*clientDetails)

	if h.accounts() == nil {
		h.Log.Warn("no account store configured, every terminal will be accepted")
	}
	h.Log.Info("initialised", "topic_root", h.config.TopicRoot)
	return nil
}

func (h *MessengerHook) accounts() store.AccountStore {
	return h.config.Router.Stores().Accounts
}

func (h *MessengerHook) client(id string) (*clientDetails, bool) {
	h.clientLock.RLock()
	defer h.clientLock.RUnlock()
	cd, ok := h.knownClients[id]
	return cd, ok
}

// OnConnectAuthenticate accepts terminals whose account checks out, or
// everyone when no account store is configured.
func (h *MessengerHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	user := string(pk.Connect.Username)
	cd := &clientDetails{UserName: user, conn: cl}

	if accounts := h.accounts(); accounts != nil {
		account, err := accounts.GetByUserName(user)
		if err != nil {
			h.Log.Error("unable to query account", "username", user, "client", cl.ID, "error", err)
			return false
		}
		if account == nil || !auth.CheckPassword(string(pk.Connect.Password), account.Salt, account.PasswordHash) {
			h.Log.Info("client failed authentication check", "username", user, "client", cl.ID, "remote", cl.Net.Remote)
			return false
		}
		cd.Account = account
	}

	h.clientLock.Lock()
	h.knownClients[cl.ID] = cd
	h.clientLock.Unlock()
	h.Log.Info("client authenticated", "username", user, "client", cl.ID)
	return true
}

// OnACLCheck lets a terminal write its own action topics and read its own
// state and the presence of stations its account may use.
func (h *MessengerHook) OnACLCheck(cl *mqtt.Client, topic string, write bool) bool {
	cd, ok := h.client(cl.ID)
	if !ok {
		h.Log.Warn("unknown client in ACL check", "client", cl.ID, "topic", topic)
		return false
	}
	if cd.isSuperuser() {
		return true
	}

	t, ok := ParseTopic(h.config.TopicRoot, topic)
	if !ok || !cd.canUseStation(t.Station) {
		h.Log.Debug("client failed ACL check", "client", cl.ID, "username", cd.UserName, "topic", topic, "write", write)
		return false
	}
	if t.Action == ActionPresence {
		return !write
	}
	if t.Terminal != models.TerminalID(cl.ID) {
		return false
	}
	if t.Action == ActionState {
		return !write
	}
	return write
}

// OnDisconnect removes the terminal of a client that went away. A session
// taken over by a reconnect keeps its terminal and its new connection.
func (h *MessengerHook) OnDisconnect(cl *mqtt.Client, err error, expire bool) {
	if cl.IsTakenOver() || errors.Is(err, packets.ErrSessionTakenOver) {
		h.Log.Info("client session taken over", "client", cl.ID)
		return
	}

	h.clientLock.Lock()
	cd, ok := h.knownClients[cl.ID]
	current := ok && cd.conn == cl
	if current {
		delete(h.knownClients, cl.ID)
	}
	h.clientLock.Unlock()
	if !current {
		h.Log.Debug("stale connection disconnected", "client", cl.ID, "error", err)
		return
	}

	h.config.Router.RemoveTerminal(models.TerminalRemoved{Terminal: models.TerminalID(cl.ID)})
	if err != nil {
		h.Log.Info("client disconnected", "client", cl.ID, "expire", expire, "error", err)
	} else {
		h.Log.Info("client disconnected", "client", cl.ID, "expire", expire)
	}
}

// OnPublish consumes terminal actions. Payloads that do not decode are
// dropped instead of being forwarded to subscribers.
func (h *MessengerHook) OnPublish(cl *mqtt.Client, pk packets.Packet) (packets.Packet, error) {
	if cl.Net.Inline {
		return pk, nil
	}
	t, ok := ParseTopic(h.config.TopicRoot, pk.TopicName)
	if !ok || !t.IsTerminalAction() {
		return pk, nil
	}
	if t.Terminal != models.TerminalID(cl.ID) {
		h.Log.Warn("terminal published for another terminal", "client", cl.ID, "topic", pk.TopicName)
		return pk, packets.ErrRejectPacket
	}

	router := h.config.Router
	switch t.Action {
	case ActionInstall:
		router.InstallTerminal(models.TerminalInstalled{Terminal: t.Terminal, StationHint: t.Station})
		h.PushState(t.Terminal, router.Snapshot(t.Terminal))

	case ActionRemove:
		router.RemoveTerminal(models.TerminalRemoved{Terminal: t.Terminal})

	case ActionIdentity:
		ev, err := DecodeIdentity(t.Station, t.Terminal, pk.Payload)
		if err != nil {
			h.Log.Error("received malformed identity payload", "client", cl.ID, "error", err, "payload", string(pk.Payload))
			return pk, packets.ErrRejectPacket
		}
		if err := router.IdentityChanged(ev); err != nil {
			h.Log.Warn("identity change rejected", "client", cl.ID, "error", err)
			return pk, packets.ErrRejectPacket
		}
		h.PushState(t.Terminal, router.Snapshot(t.Terminal))

	case ActionRequest:
		req, err := DecodeRequest(pk.Payload)
		if err != nil {
			h.Log.Error("received malformed request", "client", cl.ID, "error", err, "payload", string(pk.Payload))
			return pk, packets.ErrRejectPacket
		}
		h.PushState(t.Terminal, router.Handle(t.Terminal, req))
	}
	return pk, nil
}

// PushState publishes state to the terminal's state topic. Empty states
// are not sent.
func (h *MessengerHook) PushState(terminal models.TerminalID, state models.UiState) {
	if h.config == nil || state.IsEmpty() {
		return
	}
	view, ok := h.config.Router.Terminal(terminal)
	if !ok {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		h.Log.Error("error marshalling terminal state", "terminal", terminal, "error", err)
		return
	}
	topic := TerminalTopic(h.config.TopicRoot, view.Station, terminal, ActionState)
	if err := h.config.Server.Publish(topic, payload, false, 1); err != nil {
		h.Log.Error("hook.publish", "topic", topic, "error", err)
	}
}

// BroadcastPresence publishes a presence change to the whole station.
func (h *MessengerHook) BroadcastPresence(change models.PresenceChanged) {
	if h.config == nil {
		return
	}
	payload, err := json.Marshal(change)
	if err != nil {
		h.Log.Error("error marshalling presence change", "identity", change.Identity, "error", err)
		return
	}
	topic := PresenceTopic(h.config.TopicRoot, change.Station)
	if err := h.config.Server.Publish(topic, payload, false, 0); err != nil {
		h.Log.Error("hook.publish", "topic", topic, "error", err)
	}
}
