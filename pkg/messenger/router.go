package messenger

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/jellydator/ttlcache/v3"

	"github.com/kabili207/pda-messenger/pkg/models"
	"github.com/kabili207/pda-messenger/pkg/store"
)

const (
	defaultMaxMessageLength = 500
	defaultDedupeWindow     = 2 * time.Minute
)

// Options configures a Router.
type Options struct {
	Stores   *store.Stores
	Notifier Notifier
	Clock    *models.RoundClock
	Logger   *slog.Logger
	// MaxMessageLength is counted in runes.
	MaxMessageLength int
	// DedupeWindow is how long a send request ID is remembered.
	DedupeWindow time.Duration
}

// Router is the only writer of presence and history. It tracks every
// installed terminal and answers their UI requests.
type Router struct {
	stores   *store.Stores
	notifier Notifier
	clock    *models.RoundClock
	log      *slog.Logger
	maxLen   int

	// models.TerminalID -> *models.Terminal
	terminals sync.Map
	seq       atomic.Uint64
	sent      *ttlcache.Cache[string, struct{}]
}

func New(opts Options) *Router {
	if opts.Stores == nil {
		opts.Stores = store.NewMemoryStores()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Clock == nil {
		opts.Clock = models.NewRoundClock(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaultMaxMessageLength
	}
	if opts.DedupeWindow <= 0 {
		opts.DedupeWindow = defaultDedupeWindow
	}

	sent := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](opts.DedupeWindow),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go sent.Start()

	return &Router{
		stores:   opts.Stores,
		notifier: opts.Notifier,
		clock:    opts.Clock,
		log:      opts.Logger.With("component", "messenger"),
		maxLen:   opts.MaxMessageLength,
		sent:     sent,
	}
}

// Close stops background expiry of remembered send requests.
func (r *Router) Close() {
	r.sent.Stop()
}

func (r *Router) Stores() *store.Stores {
	return r.stores
}

func (r *Router) terminal(id models.TerminalID) (*models.Terminal, bool) {
	v, ok := r.terminals.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*models.Terminal), true
}

// Terminal returns the current state of a terminal.
func (r *Router) Terminal(id models.TerminalID) (models.TerminalView, bool) {
	t, ok := r.terminal(id)
	if !ok {
		return models.TerminalView{}, false
	}
	return t.View(), true
}

// Terminals lists all installed terminals ordered by ID.
func (r *Router) Terminals() []models.TerminalView {
	views := []models.TerminalView{}
	r.terminals.Range(func(_, v any) bool {
		views = append(views, v.(*models.Terminal).View())
		return true
	})
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// InstallTerminal registers a terminal. Installing an existing terminal
// only moves it to the hinted station.
func (r *Router) InstallTerminal(ev models.TerminalInstalled) models.TerminalView {
	fresh := models.NewTerminal(ev.Terminal, ev.StationHint)
	v, loaded := r.terminals.LoadOrStore(ev.Terminal, fresh)
	t := v.(*models.Terminal)
	if loaded && ev.StationHint != "" {
		r.move(t, ev.StationHint)
	} else if ev.StationHint != "" {
		r.stores.History.EnsureStation(ev.StationHint)
	}
	r.log.Info("terminal installed", "terminal", ev.Terminal, "station", ev.StationHint, "existing", loaded)
	return t.View()
}

// RemoveTerminal tears a terminal down, taking its owner offline first.
func (r *Router) RemoveTerminal(ev models.TerminalRemoved) {
	v, ok := r.terminals.LoadAndDelete(ev.Terminal)
	if !ok {
		return
	}
	t := v.(*models.Terminal)
	owner, wasOnline := t.ForceOffline()
	if owner != nil && wasOnline {
		r.setPresence(*owner, t.View().Station, false)
	}
	r.log.Info("terminal removed", "terminal", ev.Terminal, "was_online", wasOnline)
}

// IdentityChanged applies a credential insert or removal.
func (r *Router) IdentityChanged(ev models.IdentityChanged) error {
	t, ok := r.terminal(ev.Terminal)
	if !ok {
		return fmt.Errorf("identity change for %s: %w", ev.Terminal, ErrUnknownTerminal)
	}
	if ev.Station != "" {
		r.move(t, ev.Station)
	}

	if !ev.Inserted {
		prev, wasOnline := t.Unbind()
		if prev != nil {
			r.flushOffline(*prev, t.View().Station, wasOnline)
			r.log.Debug("identity removed", "terminal", ev.Terminal, "identity", prev.Identity)
		}
		return nil
	}

	if ev.Identity == nil || ev.Identity.Identity == "" {
		return fmt.Errorf("identity change for %s: %w", ev.Terminal, ErrMissingIdentity)
	}

	prev, wasOnline := t.Bind(*ev.Identity)
	station := t.View().Station
	if prev != nil && prev.Identity != ev.Identity.Identity {
		r.flushOffline(*prev, station, wasOnline)
	}
	r.flushOffline(*ev.Identity, station, prev != nil && prev.Identity == ev.Identity.Identity && wasOnline)
	r.log.Debug("identity bound", "terminal", ev.Terminal, "identity", ev.Identity.Identity, "name", ev.Identity.DisplayName)
	return nil
}

// move reassigns a terminal's station. An online owner goes with it: it
// leaves the old station's presence and shows up on the new one.
func (r *Router) move(t *models.Terminal, station models.StationID) {
	r.stores.History.EnsureStation(station)
	before := t.Move(station)
	if before.Station == station || before.Owner == nil || !before.Online {
		return
	}
	r.setPresence(*before.Owner, before.Station, false)
	r.setPresence(*before.Owner, station, true)
	r.log.Info("terminal moved while online", "terminal", t.ID, "identity", before.Owner.Identity, "from", before.Station, "to", station)
}

// flushOffline records c as offline, broadcasting only if it was visible.
func (r *Router) flushOffline(c models.Contact, station models.StationID, wasOnline bool) {
	if wasOnline {
		r.setPresence(c, station, false)
		return
	}
	r.stores.Presence.SetPresence(models.PresenceEntry{
		Identity:    c.Identity,
		DisplayName: c.DisplayName,
		Station:     station,
		Online:      false,
		Seq:         r.seq.Add(1),
	})
}

func (r *Router) setPresence(c models.Contact, station models.StationID, online bool) {
	applied := r.stores.Presence.SetPresence(models.PresenceEntry{
		Identity:    c.Identity,
		DisplayName: c.DisplayName,
		Station:     station,
		Online:      online,
		Seq:         r.seq.Add(1),
	})
	if !applied {
		r.log.Warn("stale presence update dropped", "identity", c.Identity, "station", station, "online", online)
		return
	}
	r.notifier.BroadcastPresence(models.PresenceChanged{
		Station:     station,
		Identity:    c.Identity,
		DisplayName: c.DisplayName,
		Online:      online,
	})
}

// ToggleOnline flips a bound terminal between online and offline and
// returns the new state.
func (r *Router) ToggleOnline(id models.TerminalID) (bool, error) {
	t, ok := r.terminal(id)
	if !ok {
		return false, ErrUnknownTerminal
	}
	v, err := t.ToggleOnline()
	if err != nil {
		return false, err
	}
	r.setPresence(*v.Owner, v.Station, v.Online)
	r.log.Info("online state changed", "terminal", id, "identity", v.Owner.Identity, "online", v.Online)
	return v.Online, nil
}

// GetContacts merges everyone online on the terminal's station with its
// owner's past conversation partners. Live entries win on display name.
// Live presence is only visible while the terminal itself is online.
func (r *Router) GetContacts(id models.TerminalID) []models.Contact {
	t, ok := r.terminal(id)
	if !ok {
		return []models.Contact{}
	}
	v := t.View()
	if v.Owner == nil {
		return []models.Contact{}
	}
	self := v.Owner.Identity

	// an offline terminal is not on the network and only sees its history
	live := []models.Contact{}
	if v.Online {
		live = r.stores.Presence.ListOnline(v.Station, self)
	}
	past := r.stores.History.GetPartners(v.Station, self)

	seen := make(map[models.Identity]struct{}, len(live)+len(past))
	contacts := make([]models.Contact, 0, len(live)+len(past))
	for _, list := range [][]models.Contact{live, past} {
		for _, c := range list {
			if c.Identity == self {
				continue
			}
			if _, dup := seen[c.Identity]; dup {
				continue
			}
			seen[c.Identity] = struct{}{}
			contacts = append(contacts, c)
		}
	}
	return contacts
}

// GetHistory returns the conversation between the terminal's owner and
// partner, oldest first.
func (r *Router) GetHistory(id models.TerminalID, partner models.Identity) []models.Message {
	t, ok := r.terminal(id)
	if !ok {
		return []models.Message{}
	}
	v := t.View()
	if v.Owner == nil || partner == "" || partner == v.Owner.Identity {
		return []models.Message{}
	}
	return r.stores.History.GetLog(v.Station, models.KeyFor(v.Owner.Identity, partner))
}

// Send delivers a message to an online terminal on the same station.
// Messages to anyone unreachable are dropped, not queued.
func (r *Router) Send(id models.TerminalID, req models.SendMessage) error {
	t, ok := r.terminal(id)
	if !ok {
		return ErrUnknownTerminal
	}
	v := t.View()
	if v.Owner == nil {
		return ErrNotBound
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > r.maxLen {
		return ErrMessageTooLong
	}
	if req.To == v.Owner.Identity {
		return ErrSelfMessage
	}

	dedupeKey := ""
	if req.RequestID != "" {
		dedupeKey = string(id) + "\x1f" + req.RequestID
		if _, seen := r.sent.GetOrSet(dedupeKey, struct{}{}); seen {
			r.log.Debug("duplicate send ignored", "terminal", id, "request_id", req.RequestID)
			return nil
		}
	}

	receiver, ok := r.resolve(v.Station, req.To, id)
	if !ok {
		r.forget(dedupeKey)
		r.log.Info("message undeliverable", "terminal", id, "from", v.Owner.Identity, "to", req.To, "station", v.Station)
		return ErrUnreachable
	}

	msg := models.Message{
		SentTime: r.clock.Since(),
		From:     v.Owner.Identity,
		To:       req.To,
		Text:     text,
	}
	if !r.stores.History.Append(v.Station, msg, v.Owner.DisplayName, receiver.Owner.DisplayName) {
		r.forget(dedupeKey)
		r.log.Error("message could not be recorded", "station", v.Station, "from", msg.From, "to", msg.To)
		return ErrHistoryWrite
	}

	r.alert(receiver, *v.Owner, msg)
	r.log.Debug("message delivered", "station", v.Station, "from", msg.From, "to", msg.To, "receiver", receiver.ID)
	return nil
}

func (r *Router) forget(dedupeKey string) {
	if dedupeKey != "" {
		r.sent.Delete(dedupeKey)
	}
}

// resolve finds an online terminal on station bound to id.
func (r *Router) resolve(station models.StationID, id models.Identity, sender models.TerminalID) (models.TerminalView, bool) {
	var found models.TerminalView
	ok := false
	r.terminals.Range(func(k, v any) bool {
		if k.(models.TerminalID) == sender {
			return true
		}
		view := v.(*models.Terminal).View()
		if view.IsReachableAs(id, station) {
			found, ok = view, true
			return false
		}
		return true
	})
	return found, ok
}

// alert tells the receiver about msg from sender. A receiver looking at
// that conversation gets the refreshed history, anyone else a popup.
func (r *Router) alert(receiver models.TerminalView, sender models.Contact, msg models.Message) {
	partner := msg.Partner(receiver.Owner.Identity)
	if receiver.ChatOpen == partner {
		r.notifier.PushState(receiver.ID, models.UiState{
			Type:            models.UpdateHistory,
			CurrentOpenChat: &sender,
			Messages:        r.stores.History.GetLog(receiver.Station, models.KeyFor(receiver.Owner.Identity, partner)),
			IsOnline:        receiver.Online,
		})
		return
	}
	r.notifier.PushState(receiver.ID, models.UiState{
		Type:      models.UpdatePopup,
		IsOnline:  receiver.Online,
		PopupText: fmt.Sprintf("New message from %s", sender.GetDisplayName()),
	})
}

// contact resolves a display name for partner as seen from owner.
func (r *Router) contact(station models.StationID, owner, partner models.Identity) models.Contact {
	if e, ok := r.stores.Presence.Get(partner); ok && e.Station == station && e.DisplayName != "" {
		return e.Contact()
	}
	for _, c := range r.stores.History.GetPartners(station, owner) {
		if c.Identity == partner {
			return c
		}
	}
	return models.Contact{Identity: partner}
}

// Snapshot builds the state shown when a terminal's UI opens.
func (r *Router) Snapshot(id models.TerminalID) models.UiState {
	v, ok := r.Terminal(id)
	if !ok {
		return models.UiState{}
	}
	return models.UiState{
		Type:     models.UpdateContacts,
		Chats:    r.GetContacts(id),
		IsOnline: v.Online,
	}
}

// Handle answers one UI request. Failures never escape: they are logged
// and answered with an empty state.
func (r *Router) Handle(id models.TerminalID, req models.Request) (state models.UiState) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic while handling messenger request", "terminal", id, "request", fmt.Sprintf("%T", req), "panic", p)
			state = models.UiState{}
		}
	}()

	t, ok := r.terminal(id)
	if !ok {
		r.log.Warn("request from unknown terminal", "terminal", id)
		return models.UiState{}
	}

	switch req := req.(type) {
	case models.GetContacts:
		t.CloseChat()
		return r.Snapshot(id)

	case models.GetHistory:
		v := t.View()
		history := models.UiState{Type: models.UpdateHistory, IsOnline: v.Online, Messages: []models.Message{}}
		if v.Owner == nil || req.Partner == "" || req.Partner == v.Owner.Identity {
			return history
		}
		t.OpenChat(req.Partner)
		partner := r.contact(v.Station, v.Owner.Identity, req.Partner)
		history.CurrentOpenChat = &partner
		history.Messages = r.GetHistory(id, req.Partner)
		return history

	case models.SendMessage:
		err := r.Send(id, req)
		switch {
		case err == nil:
			v := t.View()
			partner := r.contact(v.Station, v.Owner.Identity, req.To)
			return models.UiState{
				Type:            models.UpdateSendResult,
				Delivered:       true,
				IsOnline:        v.Online,
				CurrentOpenChat: &partner,
				Messages:        r.GetHistory(id, req.To),
			}
		case errors.Is(err, ErrUnreachable), errors.Is(err, ErrHistoryWrite), errors.Is(err, ErrSelfMessage):
			return models.UiState{
				Type:      models.UpdateSendResult,
				IsOnline:  t.View().Online,
				PopupText: PopupFailedDelivery,
			}
		case errors.Is(err, ErrMessageTooLong):
			return models.UiState{
				Type:      models.UpdateSendResult,
				IsOnline:  t.View().Online,
				PopupText: PopupMessageTooLong,
			}
		default:
			r.log.Debug("send rejected", "terminal", id, "error", err)
			return models.UiState{}
		}

	case models.ToggleOnlineState:
		online, err := r.ToggleOnline(id)
		if err != nil {
			r.log.Debug("toggle rejected", "terminal", id, "error", err)
			return models.UiState{}
		}
		return models.UiState{Type: models.UpdateOnlineState, IsOnline: online}

	default:
		r.log.Warn("unexpected messenger request", "terminal", id, "request", fmt.Sprintf("%T", req))
		return models.UiState{}
	}
}
