package refdata

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/aml-engine/pkg/models"
)

// Screening List Store
//
// Holds sanctions lists, PEP lists and internal watchlists. Reads are the
// hot path (every screening request walks every active entry), so the
// store publishes immutable snapshots: a writer rebuilds the affected list
// under the write lock and swaps it in whole; readers work from the
// snapshot slice they grabbed and never observe a partial update.

// ListStore manages screening lists.
type ListStore struct {
	mu    sync.RWMutex
	lists map[uuid.UUID]*models.ScreeningList
}

// NewListStore creates an empty list store.
func NewListStore() *ListStore {
	return &ListStore{lists: make(map[uuid.UUID]*models.ScreeningList)}
}

// CreateList registers a new named list and returns it.
func (s *ListStore) CreateList(name string, listType models.ListType) *models.ScreeningList {
	list := &models.ScreeningList{
		ID:        uuid.New(),
		Name:      name,
		Type:      listType,
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.lists[list.ID] = list
	s.mu.Unlock()

	log.Printf("[ListStore] Created %s list %q (%s)", listType, name, list.ID)
	return list
}

// AddEntry appends an entry to a list, publishing a fresh snapshot.
func (s *ListStore) AddEntry(listID uuid.UUID, entry models.ListEntry) (models.ListEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[listID]
	if !ok {
		return models.ListEntry{}, false
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.ListID = listID
	entry.Active = true
	if entry.ListedAt.IsZero() {
		entry.ListedAt = time.Now().UTC()
	}

	// Copy-on-write: replace the list value so snapshots already handed
	// out to readers stay stable.
	next := *list
	next.Entries = append(append([]models.ListEntry(nil), list.Entries...), entry)
	next.UpdatedAt = time.Now().UTC()
	s.lists[listID] = &next

	return entry, true
}

// DeactivateEntry soft-removes an entry from screening.
func (s *ListStore) DeactivateEntry(listID, entryID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[listID]
	if !ok {
		return false
	}

	next := *list
	next.Entries = append([]models.ListEntry(nil), list.Entries...)
	for i := range next.Entries {
		if next.Entries[i].ID == entryID {
			next.Entries[i].Active = false
			next.UpdatedAt = time.Now().UTC()
			s.lists[listID] = &next
			return true
		}
	}
	return false
}

// Get returns one list snapshot.
func (s *ListStore) Get(id uuid.UUID) (*models.ScreeningList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.lists[id]
	return list, ok
}

// Snapshot returns the requested lists, or every list when ids is empty.
func (s *ListStore) Snapshot(ids []uuid.UUID) []*models.ScreeningList {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(ids) == 0 {
		out := make([]*models.ScreeningList, 0, len(s.lists))
		for _, list := range s.lists {
			out = append(out, list)
		}
		return out
	}

	out := make([]*models.ScreeningList, 0, len(ids))
	for _, id := range ids {
		if list, ok := s.lists[id]; ok {
			out = append(out, list)
		}
	}
	return out
}

// Size returns the number of lists.
func (s *ListStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lists)
}
