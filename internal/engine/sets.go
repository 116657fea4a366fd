package engine

import (
	"maps"
	"slices"
)

// set is a small string set. The scheduler's sets rarely exceed a dozen
// members.
type set map[string]struct{}

func newSet(items ...string) set {
	s := make(set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s set) has(x string) bool {
	_, ok := s[x]
	return ok
}

func (s set) add(xs ...string) {
	for _, x := range xs {
		s[x] = struct{}{}
	}
}

func (s set) addAll(o set) {
	for x := range o {
		s[x] = struct{}{}
	}
}

func (s set) clone() set {
	return maps.Clone(s)
}

func (s set) minus(o set) set {
	out := make(set, len(s))
	for x := range s {
		if !o.has(x) {
			out[x] = struct{}{}
		}
	}
	return out
}

func (s set) union(o set) set {
	out := make(set, len(s)+len(o))
	out.addAll(s)
	out.addAll(o)
	return out
}

func (s set) intersect(o set) set {
	out := make(set)
	for x := range s {
		if o.has(x) {
			out[x] = struct{}{}
		}
	}
	return out
}

func (s set) subsetOf(o set) bool {
	for x := range s {
		if !o.has(x) {
			return false
		}
	}
	return true
}

func (s set) equal(o set) bool {
	return len(s) == len(o) && s.subsetOf(o)
}

func (s set) sorted() []string {
	return slices.Sorted(maps.Keys(s))
}
