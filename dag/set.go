package dag

import (
	"cmp"
	"slices"
)

// Set is an unordered set of commit ids.
type Set[K comparable] map[K]struct{}

func NewSet[K comparable](ids ...K) Set[K] {
	s := make(Set[K], len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set[K]) Add(id K) {
	s[id] = struct{}{}
}

func (s Set[K]) Has(id K) bool {
	_, ok := s[id]
	return ok
}

func (s Set[K]) Remove(id K) {
	delete(s, id)
}

func (s Set[K]) Clone() Set[K] {
	out := make(Set[K], len(s))
	for id := range s {
		out.Add(id)
	}
	return out
}

func (s Set[K]) Equal(other Set[K]) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted lists the ids in the order given by compare.
func (s Set[K]) Sorted(compare func(a, b K) int) []K {
	out := make([]K, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.SortFunc(out, compare)
	return out
}

// SortedSet lists the ids of an ordered key type in ascending order.
func SortedSet[K cmp.Ordered](s Set[K]) []K {
	return s.Sorted(cmp.Compare[K])
}
