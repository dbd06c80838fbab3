package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kabili207/pda-messenger/pkg/models"
)

const maxInsertAttempts = 3

// HistoryStore keeps every message sent during a round, per station.
type HistoryStore interface {
	// EnsureStation creates the indexes for station if they do not exist yet.
	// It reports false only if the index could not be created or read back.
	EnsureStation(station models.StationID) bool
	// Append records msg and marks both parties as conversation partners.
	Append(station models.StationID, msg models.Message, fromName, toName string) bool
	// GetLog returns the conversation for key in the order it was appended.
	GetLog(station models.StationID, key models.ConversationKey) []models.Message
	// GetPartners returns everyone id has exchanged messages with.
	GetPartners(station models.StationID, id models.Identity) []models.Contact
	Stations() []models.StationID
	Conversations(station models.StationID) []ConversationSummary
}

// ConversationSummary describes one conversation for the admin pages.
type ConversationSummary struct {
	Key      models.ConversationKey `json:"-"`
	Low      models.Contact         `json:"a"`
	High     models.Contact         `json:"b"`
	Messages int                    `json:"messages"`
	LastSent time.Duration          `json:"last_sent"`
}

// KeyFunc derives the conversation key for a pair of identities.
type KeyFunc func(a, b models.Identity) models.ConversationKey

type memoryHistoryStore struct {
	keyFor KeyFunc
	// models.StationID -> *stationHistory
	stations sync.Map
}

type stationHistory struct {
	station models.StationID
	// uint64 -> *conversationBucket
	buckets sync.Map
	// models.Identity -> *partnerSet
	chats sync.Map
}

// conversationBucket holds all logs whose pairs share a hash. Normally
// there is exactly one.
type conversationBucket struct {
	// [2]models.Identity -> *conversationLog
	logs sync.Map
}

type conversationLog struct {
	key      models.ConversationKey
	mu       sync.RWMutex
	messages []models.Message
}

type partnerSet struct {
	mu    sync.RWMutex
	order []models.Identity
	names map[models.Identity]string
}

// NewHistory returns an in-memory history. A nil keyFor uses models.KeyFor.
func NewHistory(keyFor KeyFunc) HistoryStore {
	if keyFor == nil {
		keyFor = models.KeyFor
	}
	return &memoryHistoryStore{keyFor: keyFor}
}

// loadOrCreate is an atomic get-or-insert. The loser of a concurrent
// insert adopts the winner's value. After inserting, the visible value is
// read back and must be the one returned; if that never holds the call
// gives up with ok == false.
func loadOrCreate[K comparable, V any](m *sync.Map, key K, create func() *V) (*V, bool) {
	if v, ok := m.Load(key); ok {
		if typed, ok := v.(*V); ok {
			return typed, true
		}
	}
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		actual, _ := m.LoadOrStore(key, create())
		typed, ok := actual.(*V)
		if !ok {
			break
		}
		if seen, ok := m.Load(key); ok && seen == actual {
			return typed, true
		}
	}
	return nil, false
}

func (s *memoryHistoryStore) station(station models.StationID) (*stationHistory, bool) {
	sh, ok := loadOrCreate(&s.stations, station, func() *stationHistory {
		return &stationHistory{station: station}
	})
	if !ok {
		slog.Error("station history could not be created", "station", station)
	}
	return sh, ok
}

func (s *memoryHistoryStore) lookup(station models.StationID) (*stationHistory, bool) {
	v, ok := s.stations.Load(station)
	if !ok {
		return nil, false
	}
	sh, ok := v.(*stationHistory)
	return sh, ok
}

func (s *memoryHistoryStore) EnsureStation(station models.StationID) bool {
	_, ok := s.station(station)
	return ok
}

func (s *memoryHistoryStore) Append(station models.StationID, msg models.Message, fromName, toName string) bool {
	sh, ok := s.station(station)
	if !ok {
		return false
	}

	key := s.keyFor(msg.From, msg.To)
	bucket, ok := loadOrCreate(&sh.buckets, key.Hash, func() *conversationBucket {
		return &conversationBucket{}
	})
	if !ok {
		slog.Error("conversation bucket could not be created", "station", station, "hash", key.Hash)
		return false
	}
	log, ok := loadOrCreate(&bucket.logs, key.Pair(), func() *conversationLog {
		return &conversationLog{key: key}
	})
	if !ok || log.key.Pair() != key.Pair() {
		slog.Error("conversation log could not be created", "station", station, "from", msg.From, "to", msg.To)
		return false
	}

	if !sh.addPartner(msg.From, msg.To, toName) || !sh.addPartner(msg.To, msg.From, fromName) {
		slog.Error("partner index could not be updated", "station", station, "from", msg.From, "to", msg.To)
		return false
	}

	log.append(msg)
	return true
}

func (l *conversationLog) append(msg models.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.messages); n > 0 && msg.SentTime < l.messages[n-1].SentTime {
		msg.SentTime = l.messages[n-1].SentTime
	}
	l.messages = append(l.messages, msg)
}

func (l *conversationLog) snapshot() []models.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (sh *stationHistory) addPartner(owner, partner models.Identity, name string) bool {
	set, ok := loadOrCreate(&sh.chats, owner, func() *partnerSet {
		return &partnerSet{names: map[models.Identity]string{}}
	})
	if !ok {
		return false
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	if _, seen := set.names[partner]; !seen {
		set.order = append(set.order, partner)
		set.names[partner] = name
	} else if name != "" {
		set.names[partner] = name
	}
	return true
}

func (s *memoryHistoryStore) GetLog(station models.StationID, key models.ConversationKey) []models.Message {
	sh, ok := s.lookup(station)
	if !ok {
		return []models.Message{}
	}
	v, ok := sh.buckets.Load(key.Hash)
	if !ok {
		return []models.Message{}
	}
	lv, ok := v.(*conversationBucket).logs.Load(key.Pair())
	if !ok {
		return []models.Message{}
	}
	return lv.(*conversationLog).snapshot()
}

func (s *memoryHistoryStore) GetPartners(station models.StationID, id models.Identity) []models.Contact {
	sh, ok := s.lookup(station)
	if !ok {
		return []models.Contact{}
	}
	v, ok := sh.chats.Load(id)
	if !ok {
		return []models.Contact{}
	}
	set := v.(*partnerSet)
	set.mu.RLock()
	defer set.mu.RUnlock()
	partners := make([]models.Contact, 0, len(set.order))
	for _, p := range set.order {
		partners = append(partners, models.Contact{Identity: p, DisplayName: set.names[p]})
	}
	return partners
}

func (s *memoryHistoryStore) Stations() []models.StationID {
	stations := []models.StationID{}
	s.stations.Range(func(k, _ any) bool {
		stations = append(stations, k.(models.StationID))
		return true
	})
	sort.Slice(stations, func(i, j int) bool { return stations[i] < stations[j] })
	return stations
}

func (s *memoryHistoryStore) Conversations(station models.StationID) []ConversationSummary {
	summaries := []ConversationSummary{}
	sh, ok := s.lookup(station)
	if !ok {
		return summaries
	}
	sh.buckets.Range(func(_, b any) bool {
		b.(*conversationBucket).logs.Range(func(_, l any) bool {
			log := l.(*conversationLog)
			msgs := log.snapshot()
			summary := ConversationSummary{
				Key:      log.key,
				Low:      models.Contact{Identity: log.key.Low, DisplayName: sh.partnerName(log.key.High, log.key.Low)},
				High:     models.Contact{Identity: log.key.High, DisplayName: sh.partnerName(log.key.Low, log.key.High)},
				Messages: len(msgs),
			}
			if len(msgs) > 0 {
				summary.LastSent = msgs[len(msgs)-1].SentTime
			}
			summaries = append(summaries, summary)
			return true
		})
		return true
	})
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastSent != summaries[j].LastSent {
			return summaries[i].LastSent > summaries[j].LastSent
		}
		return summaries[i].Low.Identity < summaries[j].Low.Identity
	})
	return summaries
}

// partnerName is the name owner last saw for partner
func (sh *stationHistory) partnerName(owner, partner models.Identity) string {
	v, ok := sh.chats.Load(owner)
	if !ok {
		return ""
	}
	set := v.(*partnerSet)
	set.mu.RLock()
	defer set.mu.RUnlock()
	return set.names[partner]
}
