// Package bookmarks is the single source of truth for which events the
// signed-in user has bookmarked. Every view that renders a bookmark flag
// reads from this store and every mutation goes through it; no screen
// touches bookmark state directly.
package bookmarks

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"citymeet/mobile/internal/models"
	"citymeet/mobile/internal/optimistic"
	"citymeet/mobile/internal/repository"
)

var (
	ErrNotSignedIn    = errors.New("you must be logged in to save events")
	ErrToggleInFlight = errors.New("bookmark update already in progress for this event")
)

type Store struct {
	repo   *repository.Repository
	logger *slog.Logger

	mu         sync.Mutex
	userID     string
	bookmarked []models.Event
	list       []models.Event
	selected   *models.Event
	inflight   map[string]struct{}
	journal    []journalEntry
	gen        uint64
	loads      int
	subs       []func()
}

// journalEntry records a toggle that settled while a Load was in flight, so
// the load's result can be corrected to reflect the user-initiated change.
type journalEntry struct {
	gen        uint64
	eventID    string
	bookmarked bool
	snapshot   models.Event
}

func NewStore(repo *repository.Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:     repo,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// SetUser scopes the store to a user, wiping all derived state. An empty
// id means signed out.
func (s *Store) SetUser(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.bookmarked = nil
	s.journal = nil
	s.inflight = make(map[string]struct{})
	s.refreshLocked()
	subs := s.subsLocked()
	s.mu.Unlock()
	notify(subs)
}

// Subscribe registers a callback invoked after every state change. Views
// use it to re-read their flags.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// SetEvents attaches the current "all events" list; its entries get their
// bookmark flags annotated from the store and kept in sync on toggles.
func (s *Store) SetEvents(events []models.Event) []models.Event {
	s.mu.Lock()
	s.list = events
	s.refreshLocked()
	out := append([]models.Event(nil), s.list...)
	s.mu.Unlock()
	return out
}

// SetSelected attaches the open detail record and reconciles its flag
// against the bookmarked set, which is authoritative.
func (s *Store) SetSelected(event models.Event) models.Event {
	s.mu.Lock()
	copied := event
	s.selected = &copied
	s.reconcileLocked()
	out := *s.selected
	s.mu.Unlock()
	return out
}

func (s *Store) ClearSelected() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
}

// Load replaces the bookmarked set with a fresh remote fetch. Toggles that
// settle while the fetch is in flight are re-applied on top of its result,
// so the last user-initiated change wins over the stale read.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	userID := s.userID
	startGen := s.gen
	s.loads++
	s.mu.Unlock()

	events, err := s.repo.FetchBookmarkedEvents(ctx, userID)

	s.mu.Lock()
	s.loads--
	if err != nil {
		if s.loads == 0 {
			s.journal = nil
		}
		s.mu.Unlock()
		return err
	}
	if userID != s.userID {
		// User changed while the fetch was in flight; result is stale.
		s.mu.Unlock()
		return nil
	}
	s.bookmarked = events
	for _, entry := range s.journal {
		if entry.gen > startGen {
			s.applyLocked(entry.eventID, entry.bookmarked, entry.snapshot)
		}
	}
	if s.loads == 0 {
		s.journal = nil
	}
	s.refreshLocked()
	subs := s.subsLocked()
	s.mu.Unlock()
	notify(subs)
	return nil
}

// Toggle flips the bookmark for one event with exactly one remote mutation.
// The flag is flipped optimistically across the bookmarked set, the list
// entry and the open detail record, and restored on failure. A second
// toggle for the same event while one is pending is rejected.
func (s *Store) Toggle(ctx context.Context, eventID string) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return ErrNotSignedIn
	}
	if _, busy := s.inflight[eventID]; busy {
		s.mu.Unlock()
		return ErrToggleInFlight
	}
	s.inflight[eventID] = struct{}{}
	userID := s.userID
	current := s.indexOfLocked(eventID) >= 0
	snapshot := s.snapshotLocked(eventID)
	s.mu.Unlock()

	change := optimistic.Change{
		Apply: func() {
			s.mu.Lock()
			s.applyLocked(eventID, !current, snapshot)
			s.mu.Unlock()
		},
		Revert: func() {
			s.mu.Lock()
			s.applyLocked(eventID, current, snapshot)
			s.mu.Unlock()
		},
	}
	err := optimistic.Run(ctx, change, func(ctx context.Context) error {
		if current {
			return s.repo.RemoveBookmark(ctx, userID, eventID)
		}
		return s.repo.AddBookmark(ctx, userID, eventID)
	})

	s.mu.Lock()
	delete(s.inflight, eventID)
	if err == nil {
		s.gen++
		// A Load that resolved while the mutation was in flight replaced
		// the set with a pre-toggle snapshot. Re-applying is idempotent,
		// so the settled toggle always wins.
		s.applyLocked(eventID, !current, snapshot)
		if s.loads > 0 {
			s.journal = append(s.journal, journalEntry{
				gen:        s.gen,
				eventID:    eventID,
				bookmarked: !current,
				snapshot:   snapshot,
			})
		}
	}
	subs := s.subsLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("action", "action", "bookmark_toggle", "status", "failed", "event_id", eventID, "error", err)
		return err
	}
	notify(subs)
	return nil
}

// Reconcile corrects the detail record's flag from the bookmarked set when
// they disagree; the set is authoritative.
func (s *Store) Reconcile() {
	s.mu.Lock()
	changed := s.reconcileLocked()
	subs := s.subsLocked()
	s.mu.Unlock()
	if changed {
		notify(subs)
	}
}

func (s *Store) IsBookmarked(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOfLocked(eventID) >= 0
}

// Bookmarked returns the bookmarked events in fetch order.
func (s *Store) Bookmarked() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.bookmarked...)
}

// Events returns the attached list with current flags.
func (s *Store) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.list...)
}

// Selected returns the attached detail record, if any.
func (s *Store) Selected() (models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return models.Event{}, false
	}
	return *s.selected, true
}

func (s *Store) indexOfLocked(eventID string) int {
	for i := range s.bookmarked {
		if s.bookmarked[i].ID == eventID {
			return i
		}
	}
	return -1
}

// snapshotLocked finds the fullest copy of the event available for adding
// to the bookmarked set without a second fetch.
func (s *Store) snapshotLocked(eventID string) models.Event {
	if i := s.indexOfLocked(eventID); i >= 0 {
		return s.bookmarked[i]
	}
	for i := range s.list {
		if s.list[i].ID == eventID {
			return s.list[i]
		}
	}
	if s.selected != nil && s.selected.ID == eventID {
		return *s.selected
	}
	return models.Event{ID: eventID}
}

func (s *Store) applyLocked(eventID string, bookmarked bool, snapshot models.Event) {
	if bookmarked {
		if s.indexOfLocked(eventID) < 0 {
			snapshot.IsBookmarked = true
			s.bookmarked = append(s.bookmarked, snapshot)
		}
	} else if i := s.indexOfLocked(eventID); i >= 0 {
		s.bookmarked = append(s.bookmarked[:i], s.bookmarked[i+1:]...)
	}
	for i := range s.list {
		if s.list[i].ID == eventID {
			s.list[i].IsBookmarked = bookmarked
		}
	}
	if s.selected != nil && s.selected.ID == eventID {
		s.selected.IsBookmarked = bookmarked
	}
}

func (s *Store) refreshLocked() {
	for i := range s.list {
		s.list[i].IsBookmarked = s.indexOfLocked(s.list[i].ID) >= 0
	}
	s.reconcileLocked()
}

func (s *Store) reconcileLocked() bool {
	if s.selected == nil {
		return false
	}
	want := s.indexOfLocked(s.selected.ID) >= 0
	if s.selected.IsBookmarked == want {
		return false
	}
	s.selected.IsBookmarked = want
	return true
}

func (s *Store) subsLocked() []func() {
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	return subs
}

func notify(subs []func()) {
	for _, fn := range subs {
		fn()
	}
}
