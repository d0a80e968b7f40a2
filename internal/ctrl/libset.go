package ctrl

import "sort"

// LibSet is a set of library identifiers.
type LibSet map[string]struct{}

func NewLibSet(ids ...string) LibSet {
	s := make(LibSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s LibSet) Add(id string) {
	s[id] = struct{}{}
}

func (s LibSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s LibSet) Equal(o LibSet) bool {
	if len(s) != len(o) {
		return false
	}
	for id := range s {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order.
func (s LibSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
