// Package memory provides an in-process store with the same semantics as the
// postgres store. It backs tests and local runs without DATABASE_URL.
package memory

import (
	"sync"

	"github.com/fitmatch/fitmatch-core/internal/domain/conversation"
	"github.com/fitmatch/fitmatch-core/internal/domain/fitness"
	"github.com/fitmatch/fitmatch-core/internal/domain/matching"
)

// Store holds every table behind one lock.
type Store struct {
	mu sync.RWMutex

	users    map[string]matching.Profile
	fitness  map[string]fitness.Metrics
	prefs    map[string]matching.Preferences
	matches  map[string]matching.Match
	pairs    map[string]string // pair key -> match id
	messages map[string]conversation.Message
	seq      int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]matching.Profile),
		fitness:  make(map[string]fitness.Metrics),
		prefs:    make(map[string]matching.Preferences),
		matches:  make(map[string]matching.Match),
		pairs:    make(map[string]string),
		messages: make(map[string]conversation.Message),
	}
}

// Users returns the user directory view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Fitness returns the fitness snapshot view.
func (s *Store) Fitness() *FitnessRepository { return &FitnessRepository{s: s} }

// Preferences returns the preferences view.
func (s *Store) Preferences() *PreferencesRepository { return &PreferencesRepository{s: s} }

// Matches returns the match ledger view.
func (s *Store) Matches() *MatchRepository { return &MatchRepository{s: s} }

// Messages returns the message view.
func (s *Store) Messages() *MessageRepository { return &MessageRepository{s: s} }

var (
	_ matching.UserDirectory         = (*UserRepository)(nil)
	_ matching.PreferencesRepository = (*PreferencesRepository)(nil)
	_ matching.MatchRepository       = (*MatchRepository)(nil)
	_ conversation.Repository        = (*MessageRepository)(nil)
	_ fitness.Repository             = (*FitnessRepository)(nil)
)
