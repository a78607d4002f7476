// Package linkreg holds the subspace registry: link key -> ordered endpoint
// locations, plus the direction table of endpoint facings.
//
// A Registry is owned by one goroutine (the runtime loop). It does no locking;
// readers on other goroutines work from a Snapshot.
package linkreg

import (
	"math/rand"
	"slices"
	"sort"

	"teleportals.ai/internal/sim/geom"
)

type Registry struct {
	groups     map[string][]geom.Location
	member     map[geom.Location]string
	directions map[geom.Location]geom.Facing

	rng *rand.Rand
}

// New returns an empty registry. A nil rng falls back to a time-independent
// default source; tests pass a seeded one.
func New(rng *rand.Rand) *Registry {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Registry{
		groups:     map[string][]geom.Location{},
		member:     map[geom.Location]string{},
		directions: map[geom.Location]geom.Facing{},
		rng:        rng,
	}
}

// GroupOf returns the link key of the group containing loc.
func (r *Registry) GroupOf(loc geom.Location) (string, bool) {
	k, ok := r.member[loc]
	return k, ok
}

// Add appends loc to group key and records its facing. It is a no-op returning
// false when loc already belongs to any group.
func (r *Registry) Add(key string, loc geom.Location, facing geom.Facing) bool {
	if _, ok := r.member[loc]; ok {
		return false
	}
	r.groups[key] = append(r.groups[key], loc)
	r.member[loc] = key
	r.directions[loc] = facing
	return true
}

// Insert is Add at position i of the group, clamped to its bounds. It lets a
// member that was away take back its place, hub included.
func (r *Registry) Insert(key string, i int, loc geom.Location, facing geom.Facing) bool {
	if _, ok := r.member[loc]; ok {
		return false
	}
	members := r.groups[key]
	if i < 0 {
		i = 0
	}
	if i > len(members) {
		i = len(members)
	}
	r.groups[key] = slices.Insert(members, i, loc)
	r.member[loc] = key
	r.directions[loc] = facing
	return true
}

// Remove drops loc from its group and deletes the group once empty. The
// direction entry is left in place for the caller to restore from.
func (r *Registry) Remove(loc geom.Location) (string, bool) {
	key, ok := r.member[loc]
	if !ok {
		return "", false
	}
	members := r.groups[key]
	out := members[:0]
	for _, m := range members {
		if m != loc {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		delete(r.groups, key)
	} else {
		// Zero the tail so the removed location is not retained by the backing array.
		for i := len(out); i < len(members); i++ {
			members[i] = geom.Location{}
		}
		r.groups[key] = out
	}
	delete(r.member, loc)
	return key, true
}

// ExitFor picks the endpoint an entrant at loc emerges from.
//
// The hub (first member) sends entrants to a uniformly random other member;
// every other member routes back to the hub. A lone member has no exit. The
// hub is positional, so removing it promotes the next member.
func (r *Registry) ExitFor(loc geom.Location) (geom.Location, bool) {
	key, ok := r.member[loc]
	if !ok {
		return geom.Location{}, false
	}
	members := r.groups[key]
	if len(members) < 2 {
		return geom.Location{}, false
	}
	if members[0] == loc {
		return members[1+r.rng.Intn(len(members)-1)], true
	}
	return members[0], true
}

// Hub returns the first member of group key.
func (r *Registry) Hub(key string) (geom.Location, bool) {
	members := r.groups[key]
	if len(members) == 0 {
		return geom.Location{}, false
	}
	return members[0], true
}

func (r *Registry) IsHub(loc geom.Location) bool {
	key, ok := r.member[loc]
	if !ok {
		return false
	}
	hub, _ := r.Hub(key)
	return hub == loc
}

// Members returns a copy of group key in insertion order.
func (r *Registry) Members(key string) []geom.Location {
	members := r.groups[key]
	if len(members) == 0 {
		return nil
	}
	return append([]geom.Location(nil), members...)
}

// Keys returns the link keys in sorted order.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.groups))
	for k := range r.groups {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len is the number of endpoints across all groups.
func (r *Registry) Len() int { return len(r.member) }

func (r *Registry) Direction(loc geom.Location) (geom.Facing, bool) {
	f, ok := r.directions[loc]
	return f, ok
}

func (r *Registry) SetDirection(loc geom.Location, f geom.Facing) {
	r.directions[loc] = f
}

// ForgetDirection deletes a direction entry unless loc is still a member.
func (r *Registry) ForgetDirection(loc geom.Location) bool {
	if _, ok := r.member[loc]; ok {
		return false
	}
	if _, ok := r.directions[loc]; !ok {
		return false
	}
	delete(r.directions, loc)
	return true
}

// Locations returns every endpoint in world (all worlds when world is empty),
// grouped by key in sorted order and then by insertion order.
func (r *Registry) Locations(world string) []geom.Location {
	var out []geom.Location
	for _, k := range r.Keys() {
		for _, loc := range r.groups[k] {
			if world == "" || loc.World == world {
				out = append(out, loc)
			}
		}
	}
	return out
}

// DirectionLocations lists the locations with a direction entry in world (all
// worlds when empty), in no particular order.
func (r *Registry) DirectionLocations(world string) []geom.Location {
	out := make([]geom.Location, 0, len(r.directions))
	for loc := range r.directions {
		if world == "" || loc.World == world {
			out = append(out, loc)
		}
	}
	return out
}
