package fluid

import (
	"errors"
	"fmt"
	"iter"

	"github.com/pthm-cable/fluidbridge/solver"
)

// ErrIDOutOfRange is returned when a particle ID is outside the set's capacity.
var ErrIDOutOfRange = errors.New("fluid: particle id out of range")

// ActiveSet is a dense, swap-removable index over live particle IDs.
//
// indices holds every ID exactly once; the first Count() entries are active.
// ranks is the inverse permutation, so ranks[indices[r]] == r for every slot.
// Both operations are O(1) and iteration over the active IDs is contiguous.
type ActiveSet struct {
	indices []solver.ParticleID
	ranks   []uint32
	count   int
	inSync  bool
}

// NewActiveSet returns an empty set able to index IDs in [0, capacity).
func NewActiveSet(capacity int) *ActiveSet {
	s := &ActiveSet{inSync: true}
	s.Resize(capacity)
	return s
}

// Capacity returns the number of addressable IDs.
func (s *ActiveSet) Capacity() int { return len(s.indices) }

// Count returns the number of active IDs.
func (s *ActiveSet) Count() int { return s.count }

// At returns the active ID at rank r. r must be < Count().
func (s *ActiveSet) At(r int) solver.ParticleID { return s.indices[r] }

// Rank returns the slot of id and whether it is active.
func (s *ActiveSet) Rank(id solver.ParticleID) (int, bool) {
	if int(id) >= len(s.ranks) {
		return 0, false
	}
	r := int(s.ranks[id])
	return r, r < s.count
}

// IsActive reports whether id currently occupies an active slot.
func (s *ActiveSet) IsActive(id solver.ParticleID) bool {
	_, ok := s.Rank(id)
	return ok
}

// Active returns the active prefix. The slice aliases internal storage and is
// only valid until the next mutation.
func (s *ActiveSet) Active() []solver.ParticleID {
	return s.indices[:s.count]
}

// All iterates active IDs in rank order.
func (s *ActiveSet) All() iter.Seq2[int, solver.ParticleID] {
	return func(yield func(int, solver.ParticleID) bool) {
		for r := 0; r < s.count; r++ {
			if !yield(r, s.indices[r]) {
				return
			}
		}
	}
}

// Activate moves id into the active prefix and returns its rank.
// Activating an already active ID is a no-op.
func (s *ActiveSet) Activate(id solver.ParticleID) (int, error) {
	if int(id) >= len(s.ranks) {
		return 0, fmt.Errorf("activate %d (capacity %d): %w", id, len(s.ranks), ErrIDOutOfRange)
	}
	r := int(s.ranks[id])
	if r < s.count {
		return r, nil
	}

	// Swap id with whatever currently sits just past the active prefix.
	next := s.indices[s.count]
	s.indices[r] = next
	s.ranks[next] = uint32(r)
	s.indices[s.count] = id
	s.ranks[id] = uint32(s.count)
	s.count++
	return s.count - 1, nil
}

// Deactivate removes id from the active prefix by swapping it with the last
// active entry. Deactivating an inactive ID is a no-op.
func (s *ActiveSet) Deactivate(id solver.ParticleID) error {
	if int(id) >= len(s.ranks) {
		return fmt.Errorf("deactivate %d (capacity %d): %w", id, len(s.ranks), ErrIDOutOfRange)
	}
	r := int(s.ranks[id])
	if r >= s.count {
		return nil
	}

	last := s.count - 1
	tail := s.indices[last]
	s.indices[r] = tail
	s.ranks[tail] = uint32(r)
	s.indices[last] = id
	s.ranks[id] = uint32(last)
	s.count--
	return nil
}

// Resize grows the set to n addressable IDs. New entries map to themselves and
// are inactive. Shrinking is not supported; smaller n is ignored.
func (s *ActiveSet) Resize(n int) {
	old := len(s.indices)
	if n <= old {
		return
	}
	s.indices = append(s.indices, make([]solver.ParticleID, n-old)...)
	s.ranks = append(s.ranks, make([]uint32, n-old)...)
	for i := old; i < n; i++ {
		s.indices[i] = solver.ParticleID(i)
		s.ranks[i] = uint32(i)
	}
}

// Clear deactivates everything and restores the identity mapping.
func (s *ActiveSet) Clear() {
	for i := range s.indices {
		s.indices[i] = solver.ParticleID(i)
		s.ranks[i] = uint32(i)
	}
	s.count = 0
	s.inSync = true
}

// MarkOutOfSync flags that indices may no longer mirror ranks.
func (s *ActiveSet) MarkOutOfSync() { s.inSync = false }

// InSync reports whether indices are known to mirror ranks.
func (s *ActiveSet) InSync() bool { return s.inSync }

// RebuildFromRanks recomputes indices as the inverse of ranks. It is
// idempotent. If ranks is not a permutation the set is cleared instead and
// false is returned.
func (s *ActiveSet) RebuildFromRanks() bool {
	n := len(s.ranks)
	seen := make([]bool, n)
	for _, r := range s.ranks {
		if int(r) >= n || seen[r] {
			s.Clear()
			return false
		}
		seen[r] = true
	}
	for id, r := range s.ranks {
		s.indices[r] = solver.ParticleID(id)
	}
	s.inSync = true
	return true
}

// Validate checks the bijection between indices and ranks.
func (s *ActiveSet) Validate() error {
	if len(s.indices) != len(s.ranks) {
		return fmt.Errorf("active set: %d indices vs %d ranks", len(s.indices), len(s.ranks))
	}
	if s.count < 0 || s.count > len(s.indices) {
		return fmt.Errorf("active set: count %d outside [0,%d]", s.count, len(s.indices))
	}
	for r, id := range s.indices {
		if int(id) >= len(s.ranks) {
			return fmt.Errorf("active set: slot %d holds id %d: %w", r, id, ErrIDOutOfRange)
		}
		if int(s.ranks[id]) != r {
			return fmt.Errorf("active set: ranks[%d]=%d, want %d", id, s.ranks[id], r)
		}
	}
	return nil
}
