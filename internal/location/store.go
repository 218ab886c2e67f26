package location

import (
	"time"

	"github.com/UnknownOlympus/strider/internal/models"
)

// Source identifies what produced a committed position.
type Source string

const (
	SourceDevice Source = "device" // device geolocation fix
	SourceIP     Source = "ip"     // IP geolocation fallback
	SourceMove   Source = "move"   // directional move
	SourceManual Source = "manual" // explicit placement by a client
)

// Snapshot is the state delivered to subscribers after every commit.
type Snapshot struct {
	Position models.Coordinates
	Source   Source
	Revision uint64
	At       time.Time
}

// Store holds the simulated user position.
// It has no locking: it is owned by the controller loop, which is its only reader and writer.
type Store struct {
	position models.Coordinates
	set      bool
	revision uint64

	nextID      int
	subscribers map[int]func(Snapshot)
	now         func() time.Time
}

// NewStore creates an empty store. The position stays unset until the first Commit.
func NewStore() *Store {
	return &Store{
		subscribers: make(map[int]func(Snapshot)),
		now:         time.Now,
	}
}

// Get returns the current position and whether one has been committed yet.
func (s *Store) Get() (models.Coordinates, bool) {
	return s.position, s.set
}

// Revision returns the number of commits so far.
func (s *Store) Revision() uint64 {
	return s.revision
}

// Commit replaces the position and notifies every subscriber synchronously.
func (s *Store) Commit(position models.Coordinates, source Source) Snapshot {
	s.position = position
	s.set = true
	s.revision++

	snap := Snapshot{Position: position, Source: source, Revision: s.revision, At: s.now()}
	for _, fn := range s.subscribers {
		fn(snap)
	}

	return snap
}

// Subscribe registers fn for every future commit. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	return func() { delete(s.subscribers, id) }
}
