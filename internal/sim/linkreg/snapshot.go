package linkreg

import (
	"sort"

	"teleportals.ai/internal/sim/geom"
)

// Group is one subspace in insertion order.
type Group struct {
	Key     string
	Members []geom.Location
}

// Snapshot is a deep, immutable copy of a Registry, safe to hand to another
// goroutine (the async document writer).
type Snapshot struct {
	Groups     []Group
	Directions map[geom.Location]geom.Facing
}

func (s Snapshot) Endpoints() int {
	n := 0
	for _, g := range s.Groups {
		n += len(g.Members)
	}
	return n
}

// Snapshot copies the registry. Groups are ordered by key.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Groups:     make([]Group, 0, len(r.groups)),
		Directions: make(map[geom.Location]geom.Facing, len(r.directions)),
	}
	for _, k := range r.Keys() {
		s.Groups = append(s.Groups, Group{Key: k, Members: r.Members(k)})
	}
	for loc, f := range r.directions {
		s.Directions[loc] = f
	}
	return s
}

// Restore replaces the registry contents with s. Duplicate locations keep their
// first occurrence (by group key order, then member order) so the
// one-group-per-location invariant holds even for hand-edited input. It returns
// the number of dropped duplicates.
func (r *Registry) Restore(s Snapshot) int {
	r.groups = map[string][]geom.Location{}
	r.member = map[geom.Location]string{}
	r.directions = map[geom.Location]geom.Facing{}

	groups := append([]Group(nil), s.Groups...)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })

	dropped := 0
	for _, g := range groups {
		for _, loc := range g.Members {
			if _, dup := r.member[loc]; dup {
				dropped++
				continue
			}
			r.groups[g.Key] = append(r.groups[g.Key], loc)
			r.member[loc] = g.Key
		}
	}
	for loc, f := range s.Directions {
		r.directions[loc] = f
	}
	return dropped
}
