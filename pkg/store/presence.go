package store

import (
	"sort"
	"sync"

	"github.com/kabili207/pda-messenger/pkg/models"
)

// PresenceStore tracks which identities are reachable on which station.
type PresenceStore interface {
	// SetPresence replaces the entry for e.Identity. An update whose Seq is
	// older than the stored one is rejected and false is returned.
	SetPresence(e models.PresenceEntry) bool
	// ListOnline returns every identity online on station except excluding.
	ListOnline(station models.StationID, excluding models.Identity) []models.Contact
	Get(id models.Identity) (models.PresenceEntry, bool)
	All() []models.PresenceEntry
}

type memoryPresenceStore struct {
	// models.Identity -> *models.PresenceEntry
	entries sync.Map
}

func NewPresence() PresenceStore {
	return &memoryPresenceStore{}
}

func (s *memoryPresenceStore) SetPresence(e models.PresenceEntry) bool {
	next := &e
	for {
		cur, loaded := s.entries.LoadOrStore(e.Identity, next)
		if !loaded {
			return true
		}
		old := cur.(*models.PresenceEntry)
		if e.Seq != 0 && old.Seq > e.Seq {
			return false
		}
		if s.entries.CompareAndSwap(e.Identity, old, next) {
			return true
		}
	}
}

func (s *memoryPresenceStore) ListOnline(station models.StationID, excluding models.Identity) []models.Contact {
	online := []models.Contact{}
	s.entries.Range(func(_, v any) bool {
		e := v.(*models.PresenceEntry)
		if e.Online && e.Station == station && e.Identity != excluding {
			online = append(online, e.Contact())
		}
		return true
	})
	sortContacts(online)
	return online
}

func (s *memoryPresenceStore) Get(id models.Identity) (models.PresenceEntry, bool) {
	v, ok := s.entries.Load(id)
	if !ok {
		return models.PresenceEntry{}, false
	}
	return *v.(*models.PresenceEntry), true
}

func (s *memoryPresenceStore) All() []models.PresenceEntry {
	all := []models.PresenceEntry{}
	s.entries.Range(func(_, v any) bool {
		all = append(all, *v.(*models.PresenceEntry))
		return true
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].Station != all[j].Station {
			return all[i].Station < all[j].Station
		}
		return all[i].Identity < all[j].Identity
	})
	return all
}

// sortContacts orders by display name, then identity as a tiebreaker
func sortContacts(contacts []models.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].DisplayName != contacts[j].DisplayName {
			return contacts[i].DisplayName < contacts[j].DisplayName
		}
		return contacts[i].Identity < contacts[j].Identity
	})
}
