package poller

// seenSet is a bounded insertion-ordered id set. Once the cap is
// exceeded the oldest entries fall out; persistence dedup in storage
// catches anything that slips back in.
type seenSet struct {
	ids   map[string]struct{}
	order []string
	limit int
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{
		ids:   make(map[string]struct{}),
		limit: limit,
	}
}

func (s *seenSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *seenSet) Add(id string) {
	if s.Has(id) {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		drop := len(s.order) - s.limit
		for _, old := range s.order[:drop] {
			delete(s.ids, old)
		}
		s.order = append(s.order[:0], s.order[drop:]...)
	}
}

func (s *seenSet) Seed(ids []string) {
	for _, id := range ids {
		s.Add(id)
	}
}

func (s *seenSet) Len() int { return len(s.order) }
