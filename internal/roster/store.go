package roster

// Store remembers every member id seen during a scrape. It only grows.
type Store struct {
	seen  map[string]struct{}
	order []string
}

func NewStore() *Store {
	return &Store{seen: make(map[string]struct{})}
}

func (s *Store) Has(id string) bool {
	_, ok := s.seen[id]
	return ok
}

// Add records id and reports whether it was not seen before.
func (s *Store) Add(id string) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *Store) Len() int {
	return len(s.order)
}

// Keys returns the ids in discovery order.
func (s *Store) Keys() []string {
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return keys
}
