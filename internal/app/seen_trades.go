package app

// SeenTradeCapacity bounds the seen set of every watcher.
const SeenTradeCapacity = 25

// SeenTradeSet is a bounded insertion-ordered set of trade ids. Adding to a
// full set evicts the oldest id. It is owned by a single watcher and is not
// safe for concurrent use.
type SeenTradeSet struct {
	capacity int
	ids      []int64
	index    map[int64]struct{}
}

func NewSeenTradeSet(capacity int) *SeenTradeSet {
	if capacity <= 0 {
		capacity = SeenTradeCapacity
	}
	return &SeenTradeSet{
		capacity: capacity,
		ids:      make([]int64, 0, capacity),
		index:    make(map[int64]struct{}, capacity),
	}
}

func (s *SeenTradeSet) Contains(id int64) bool {
	_, ok := s.index[id]
	return ok
}

// Add inserts id and reports whether it was new.
func (s *SeenTradeSet) Add(id int64) bool {
	if s.Contains(id) {
		return false
	}
	if len(s.ids) == s.capacity {
		delete(s.index, s.ids[0])
		s.ids = append(s.ids[:0], s.ids[1:]...)
	}
	s.ids = append(s.ids, id)
	s.index[id] = struct{}{}
	return true
}

func (s *SeenTradeSet) Len() int {
	return len(s.ids)
}

// IDs returns the ids oldest first.
func (s *SeenTradeSet) IDs() []int64 {
	out := make([]int64, len(s.ids))
	copy(out, s.ids)
	return out
}
