package messenger

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabili207/pda-messenger/pkg/models"
	"github.com/kabili207/pda-messenger/pkg/store"
)

type pushed struct {
	terminal models.TerminalID
	state    models.UiState
}

type recordingNotifier struct {
	mu       sync.Mutex
	states   []pushed
	presence []models.PresenceChanged
}

func (n *recordingNotifier) PushState(terminal models.TerminalID, state models.UiState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, pushed{terminal, state})
}

func (n *recordingNotifier) BroadcastPresence(change models.PresenceChanged) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.presence = append(n.presence, change)
}

func (n *recordingNotifier) lastState(t *testing.T) pushed {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.states)
	return n.states[len(n.states)-1]
}

type fixture struct {
	router   *Router
	notifier *recordingNotifier
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{notifier: &recordingNotifier{}, now: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	f.router = New(Options{
		Notifier: f.notifier,
		Clock:    models.NewRoundClock(func() time.Time { return f.now }),
	})
	t.Cleanup(f.router.Close)
	return f
}

func (f *fixture) tick() {
	f.now = f.now.Add(time.Second)
}

func (f *fixture) install(t *testing.T, id models.TerminalID, station models.StationID) {
	t.Helper()
	f.router.InstallTerminal(models.TerminalInstalled{Terminal: id, StationHint: station})
}

func (f *fixture) bind(t *testing.T, id models.TerminalID, who models.Identity, name string) {
	t.Helper()
	require.NoError(t, f.router.IdentityChanged(models.IdentityChanged{
		Terminal: id,
		Inserted: true,
		Identity: &models.Contact{Identity: who, DisplayName: name},
	}))
}

func (f *fixture) goOnline(t *testing.T, id models.TerminalID) {
	t.Helper()
	online, err := f.router.ToggleOnline(id)
	require.NoError(t, err)
	require.True(t, online)
}

// alice on t1 and bob on t2, both online on station-a
func (f *fixture) aliceAndBob(t *testing.T) {
	t.Helper()
	f.install(t, "t1", "station-a")
	f.install(t, "t2", "station-a")
	f.bind(t, "t1", "alice", "Alice")
	f.bind(t, "t2", "bob", "Bob")
	f.goOnline(t, "t1")
	f.goOnline(t, "t2")
}

func TestScenarioSendAndReadBothWays(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	f.tick()
	require.NoError(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"}))

	want := []models.Message{{SentTime: time.Second, From: "bob", To: "alice", Text: "hi"}}
	require.Equal(t, want, f.router.GetHistory("t1", "bob"))
	require.Equal(t, want, f.router.GetHistory("t2", "alice"))

	// alice has no chat open, so she gets a popup
	last := f.notifier.lastState(t)
	require.Equal(t, models.TerminalID("t1"), last.terminal)
	require.Equal(t, models.UpdatePopup, last.state.Type)
	require.Equal(t, "New message from Bob", last.state.PopupText)
}

func TestScenarioUnboundReceiverIsUnreachable(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	require.NoError(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"}))
	before := f.router.GetHistory("t2", "alice")

	require.NoError(t, f.router.IdentityChanged(models.IdentityChanged{Terminal: "t1", Inserted: false}))

	err := f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"})
	require.ErrorIs(t, err, ErrUnreachable)
	require.Equal(t, before, f.router.GetHistory("t2", "alice"))

	e, ok := f.router.Stores().Presence.Get("alice")
	require.True(t, ok)
	require.False(t, e.Online)
}

func TestScenarioHistoryFollowsIdentityNotTerminal(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	require.NoError(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"}))

	f.bind(t, "t1", "carol", "Carol")
	for _, c := range f.router.GetContacts("t1") {
		require.NotEqual(t, models.Identity("bob"), c.Identity)
	}
	require.Empty(t, f.router.GetHistory("t1", "bob"))

	// alice's card goes into a third terminal
	f.install(t, "t3", "station-a")
	f.bind(t, "t3", "alice", "Alice")
	require.Len(t, f.router.GetHistory("t3", "bob"), 1)
	require.Contains(t, f.router.GetContacts("t3"), models.Contact{Identity: "bob", DisplayName: "Bob"})
}

func TestScenarioConcurrentStationCreation(t *testing.T) {
	f := newFixture(t)
	f.install(t, "t1", "")
	f.install(t, "t2", "")

	var wg sync.WaitGroup
	for _, id := range []models.TerminalID{"t1", "t2"} {
		wg.Add(1)
		go func(id models.TerminalID) {
			defer wg.Done()
			assert.NoError(t, f.router.IdentityChanged(models.IdentityChanged{
				Terminal: id,
				Station:  "fresh",
				Inserted: true,
				Identity: &models.Contact{Identity: models.Identity(id) + "-owner"},
			}))
		}(id)
	}
	wg.Wait()
	f.goOnline(t, "t1")
	f.goOnline(t, "t2")

	require.NoError(t, f.router.Send("t1", models.SendMessage{To: "t2-owner", Text: "ping"}))
	require.NoError(t, f.router.Send("t2", models.SendMessage{To: "t1-owner", Text: "pong"}))

	require.Equal(t, []models.StationID{"fresh"}, f.router.Stores().History.Stations())
	require.Len(t, f.router.GetHistory("t1", "t2-owner"), 2)
}

func TestSendToOfflineReceiverNeverAppends(t *testing.T) {
	f := newFixture(t)
	f.install(t, "t1", "station-a")
	f.install(t, "t2", "station-a")
	f.bind(t, "t1", "alice", "Alice")
	f.bind(t, "t2", "bob", "Bob")
	f.goOnline(t, "t2")

	// alice is bound but never went online
	require.ErrorIs(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"}), ErrUnreachable)
	require.Empty(t, f.router.GetHistory("t2", "alice"))
	require.Empty(t, f.router.Stores().History.GetPartners("station-a", "bob"))
}

func TestSendDoesNotCrossStations(t *testing.T) {
	f := newFixture(t)
	f.install(t, "t1", "station-a")
	f.install(t, "t2", "station-b")
	f.bind(t, "t1", "alice", "Alice")
	f.bind(t, "t2", "bob", "Bob")
	f.goOnline(t, "t1")
	f.goOnline(t, "t2")

	require.ErrorIs(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"}), ErrUnreachable)
	require.Empty(t, f.router.GetContacts("t2"))
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	f.install(t, "t9", "station-a")

	tests := []struct {
		name     string
		terminal models.TerminalID
		req      models.SendMessage
		err      error
	}{
		{"empty", "t2", models.SendMessage{To: "alice", Text: ""}, ErrEmptyMessage},
		{"whitespace", "t2", models.SendMessage{To: "alice", Text: "  \n"}, ErrEmptyMessage},
		{"too long", "t2", models.SendMessage{To: "alice", Text: strings.Repeat("é", defaultMaxMessageLength+1)}, ErrMessageTooLong},
		{"self", "t2", models.SendMessage{To: "bob", Text: "me"}, ErrSelfMessage},
		{"unbound", "t9", models.SendMessage{To: "alice", Text: "hi"}, ErrNotBound},
		{"unknown terminal", "nope", models.SendMessage{To: "alice", Text: "hi"}, ErrUnknownTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, f.router.Send(tt.terminal, tt.req), tt.err)
		})
	}
	require.Empty(t, f.router.GetHistory("t2", "alice"))
}

func TestSendDeduplicatesRequestIDs(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	req := models.SendMessage{RequestID: "r-1", To: "alice", Text: "once"}
	require.NoError(t, f.router.Send("t2", req))
	require.NoError(t, f.router.Send("t2", req))
	require.Len(t, f.router.GetHistory("t2", "alice"), 1)

	// a failed attempt does not burn the request ID
	require.NoError(t, f.router.IdentityChanged(models.IdentityChanged{Terminal: "t1", Inserted: false}))
	retry := models.SendMessage{RequestID: "r-2", To: "alice", Text: "later"}
	require.ErrorIs(t, f.router.Send("t2", retry), ErrUnreachable)
	f.bind(t, "t1", "alice", "Alice")
	f.goOnline(t, "t1")
	require.NoError(t, f.router.Send("t2", retry))
	require.Len(t, f.router.GetHistory("t2", "alice"), 2)
}

func TestGetContactsMergesLiveAndPast(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	f.install(t, "t3", "station-a")
	f.bind(t, "t3", "carol", "Carol")
	f.goOnline(t, "t3")

	require.NoError(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"}))
	// bob goes offline but stays a past partner
	_, err := f.router.ToggleOnline("t2")
	require.NoError(t, err)

	contacts := f.router.GetContacts("t1")
	require.ElementsMatch(t, []models.Contact{
		{Identity: "bob", DisplayName: "Bob"},
		{Identity: "carol", DisplayName: "Carol"},
	}, contacts)
	for _, c := range contacts {
		require.NotEqual(t, models.Identity("alice"), c.Identity)
	}
}

func TestGetContactsPrefersLiveName(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	require.NoError(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"}))

	// bob's card was reissued under a new name
	f.bind(t, "t2", "bob", "Robert")
	f.goOnline(t, "t2")

	require.Equal(t, []models.Contact{{Identity: "bob", DisplayName: "Robert"}}, f.router.GetContacts("t1"))
}

func TestUnboundTerminalGetsNeutralResults(t *testing.T) {
	f := newFixture(t)
	f.install(t, "t1", "station-a")

	require.Empty(t, f.router.GetContacts("t1"))
	require.Empty(t, f.router.GetHistory("t1", "bob"))
	_, err := f.router.ToggleOnline("t1")
	require.ErrorIs(t, err, ErrNotBound)
	require.Empty(t, f.router.Stores().Presence.All())
}

func TestToggleBroadcastsPresence(t *testing.T) {
	f := newFixture(t)
	f.install(t, "t1", "station-a")
	f.bind(t, "t1", "alice", "Alice")
	require.Empty(t, f.notifier.presence)

	f.goOnline(t, "t1")
	online, err := f.router.ToggleOnline("t1")
	require.NoError(t, err)
	require.False(t, online)

	require.Equal(t, []models.PresenceChanged{
		{Station: "station-a", Identity: "alice", DisplayName: "Alice", Online: true},
		{Station: "station-a", Identity: "alice", DisplayName: "Alice", Online: false},
	}, f.notifier.presence)
}

func TestRebindFlushesPreviousIdentity(t *testing.T) {
	f := newFixture(t)
	f.install(t, "t1", "station-a")
	f.bind(t, "t1", "alice", "Alice")
	f.goOnline(t, "t1")

	f.bind(t, "t1", "carol", "Carol")

	alice, _ := f.router.Stores().Presence.Get("alice")
	require.False(t, alice.Online)
	view, _ := f.router.Terminal("t1")
	require.Equal(t, models.StateOffline, view.State())
	require.Equal(t, models.PresenceChanged{Station: "station-a", Identity: "alice", DisplayName: "Alice", Online: false},
		f.notifier.presence[len(f.notifier.presence)-1])
}

func TestRemoveTerminalGoesOfflineFirst(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	f.router.RemoveTerminal(models.TerminalRemoved{Terminal: "t1"})

	_, ok := f.router.Terminal("t1")
	require.False(t, ok)
	alice, _ := f.router.Stores().Presence.Get("alice")
	require.False(t, alice.Online)
	require.Equal(t, models.PresenceChanged{Station: "station-a", Identity: "alice", DisplayName: "Alice", Online: false},
		f.notifier.presence[len(f.notifier.presence)-1])
	require.ErrorIs(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "hi"}), ErrUnreachable)

	// removing twice is harmless
	f.router.RemoveTerminal(models.TerminalRemoved{Terminal: "t1"})
}

func (n *recordingNotifier) lastPresence(t *testing.T, count int) []models.PresenceChanged {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.GreaterOrEqual(t, len(n.presence), count)
	return append([]models.PresenceChanged(nil), n.presence[len(n.presence)-count:]...)
}

func TestMovingOnlineTerminalCarriesPresence(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)
	f.install(t, "t3", "station-a")
	f.bind(t, "t3", "carol", "Carol")
	f.goOnline(t, "t3")
	f.install(t, "t4", "station-b")
	f.bind(t, "t4", "dave", "Dave")
	f.goOnline(t, "t4")

	f.install(t, "t1", "station-b")

	require.Equal(t, []models.PresenceChanged{
		{Station: "station-a", Identity: "alice", DisplayName: "Alice", Online: false},
		{Station: "station-b", Identity: "alice", DisplayName: "Alice", Online: true},
	}, f.notifier.lastPresence(t, 2))

	require.Equal(t, []models.Contact{{Identity: "bob", DisplayName: "Bob"}}, f.router.GetContacts("t3"))
	require.Equal(t, []models.Contact{{Identity: "alice", DisplayName: "Alice"}}, f.router.GetContacts("t4"))

	e, ok := f.router.Stores().Presence.Get("alice")
	require.True(t, ok)
	require.Equal(t, models.StationID("station-b"), e.Station)
	require.True(t, e.Online)

	require.ErrorIs(t, f.router.Send("t3", models.SendMessage{To: "alice", Text: "still here?"}), ErrUnreachable)
	require.NoError(t, f.router.Send("t4", models.SendMessage{To: "alice", Text: "welcome"}))

	// the offline notice goes to the station the terminal is on now
	require.NoError(t, f.router.IdentityChanged(models.IdentityChanged{Terminal: "t1", Inserted: false}))
	require.Equal(t, []models.PresenceChanged{
		{Station: "station-b", Identity: "alice", DisplayName: "Alice", Online: false},
	}, f.notifier.lastPresence(t, 1))
}

func TestMovingOfflineTerminalIsSilent(t *testing.T) {
	f := newFixture(t)
	f.install(t, "t1", "station-a")
	f.bind(t, "t1", "alice", "Alice")
	broadcasts := len(f.notifier.presence)

	require.NoError(t, f.router.IdentityChanged(models.IdentityChanged{Terminal: "t1", Station: "station-b", Inserted: true, Identity: &models.Contact{Identity: "alice", DisplayName: "Alice"}}))

	require.Len(t, f.notifier.presence, broadcasts)
	v, ok := f.router.Terminal("t1")
	require.True(t, ok)
	require.Equal(t, models.StationID("station-b"), v.Station)
	require.Contains(t, f.router.Stores().History.Stations(), models.StationID("station-b"))
}

func TestIdentityChangedErrors(t *testing.T) {
	f := newFixture(t)
	err := f.router.IdentityChanged(models.IdentityChanged{Terminal: "ghost", Inserted: true})
	require.ErrorIs(t, err, ErrUnknownTerminal)

	f.install(t, "t1", "station-a")
	err = f.router.IdentityChanged(models.IdentityChanged{Terminal: "t1", Inserted: true})
	require.ErrorIs(t, err, ErrMissingIdentity)
}

func TestHandleRequests(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	state := f.router.Handle("t1", models.GetContacts{})
	require.Equal(t, models.UpdateContacts, state.Type)
	require.True(t, state.IsOnline)
	require.Equal(t, []models.Contact{{Identity: "bob", DisplayName: "Bob"}}, state.Chats)

	state = f.router.Handle("t1", models.GetHistory{Partner: "bob"})
	require.Equal(t, models.UpdateHistory, state.Type)
	require.Equal(t, &models.Contact{Identity: "bob", DisplayName: "Bob"}, state.CurrentOpenChat)
	require.Empty(t, state.Messages)

	state = f.router.Handle("t2", models.SendMessage{To: "alice", Text: "hi"})
	require.Equal(t, models.UpdateSendResult, state.Type)
	require.True(t, state.Delivered)
	require.Len(t, state.Messages, 1)

	// alice is looking at the conversation, so she gets the history, not a popup
	last := f.notifier.lastState(t)
	require.Equal(t, models.TerminalID("t1"), last.terminal)
	require.Equal(t, models.UpdateHistory, last.state.Type)
	require.Len(t, last.state.Messages, 1)

	state = f.router.Handle("t1", models.ToggleOnlineState{})
	require.Equal(t, models.UiState{Type: models.UpdateOnlineState, IsOnline: false}, state)

	state = f.router.Handle("t2", models.SendMessage{To: "alice", Text: "still there?"})
	require.False(t, state.Delivered)
	require.Equal(t, PopupFailedDelivery, state.PopupText)

	require.True(t, f.router.Handle("t2", models.SendMessage{To: "alice", Text: ""}).IsEmpty())
	require.True(t, f.router.Handle("ghost", models.GetContacts{}).IsEmpty())
}

func TestHandleRejectsSelfHistory(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	state := f.router.Handle("t1", models.GetHistory{Partner: "alice"})
	require.Equal(t, models.UpdateHistory, state.Type)
	require.Nil(t, state.CurrentOpenChat)
	require.Empty(t, state.Messages)
}

type bogusRequest struct{}

func (bogusRequest) Kind() models.RequestKind { return "bogus" }

type explodingHistory struct {
	store.HistoryStore
}

func (explodingHistory) GetPartners(models.StationID, models.Identity) []models.Contact {
	panic("index corrupted")
}

func TestHandleSurvivesBadInput(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	require.True(t, f.router.Handle("t1", bogusRequest{}).IsEmpty())
	require.True(t, f.router.Handle("t1", nil).IsEmpty())

	stores := f.router.Stores()
	stores.History = explodingHistory{HistoryStore: stores.History}
	require.True(t, f.router.Handle("t1", models.GetContacts{}).IsEmpty())
}

func TestHistoryOrderUnderConcurrentSends(t *testing.T) {
	f := newFixture(t)
	f.aliceAndBob(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.router.Send("t1", models.SendMessage{To: "bob", Text: "a"}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.router.Send("t2", models.SendMessage{To: "alice", Text: "b"}))
		}()
	}
	wg.Wait()

	log := f.router.GetHistory("t1", "bob")
	require.Len(t, log, 40)
	for i := 1; i < len(log); i++ {
		require.LessOrEqual(t, log[i-1].SentTime, log[i].SentTime)
	}
}
