package linkreg

import (
	"math/rand"
	"testing"

	"teleportals.ai/internal/sim/geom"
)

var (
	locA = geom.At("world", 0, 64, 0)
	locB = geom.At("world", 10, 64, 0)
	locC = geom.At("world", 20, 64, 0)
	locD = geom.At("world_nether", 1, 32, 1)
)

func TestAdd_IdempotentAndExclusive(t *testing.T) {
	r := New(nil)
	if !r.Add("g1", locA, geom.North) {
		t.Fatalf("first add should succeed")
	}
	if r.Add("g1", locA, geom.East) {
		t.Fatalf("duplicate add should be a no-op")
	}
	if r.Add("g2", locA, geom.East) {
		t.Fatalf("location may belong to one group only")
	}
	if got := r.Members("g1"); len(got) != 1 {
		t.Fatalf("members = %v", got)
	}
	if f, _ := r.Direction(locA); f != geom.North {
		t.Fatalf("direction overwritten by rejected add: %s", f)
	}
	if _, ok := r.GroupOf(locA); !ok {
		t.Fatalf("GroupOf should find locA")
	}
	if _, ok := r.Hub("g2"); ok {
		t.Fatalf("g2 should not exist")
	}
}

func TestInsert_RestoresPosition(t *testing.T) {
	r := New(nil)
	r.Add("g1", locB, geom.North)
	if !r.Insert("g1", 0, locA, geom.East) {
		t.Fatalf("insert at head should succeed")
	}
	if hub, _ := r.Hub("g1"); hub != locA {
		t.Fatalf("hub = %v", hub)
	}
	if !r.Insert("g1", 99, locC, geom.West) || r.Insert("g1", 1, locC, geom.West) {
		t.Fatalf("insert should clamp and reject members")
	}
	if got := r.Members("g1"); len(got) != 3 || got[0] != locA || got[1] != locB || got[2] != locC {
		t.Fatalf("members = %v", got)
	}
	if f, _ := r.Direction(locA); f != geom.East {
		t.Fatalf("direction = %s", f)
	}
}

func TestRemove_DropsEmptyGroupKeepsDirection(t *testing.T) {
	r := New(nil)
	r.Add("g1", locA, geom.West)
	key, ok := r.Remove(locA)
	if !ok || key != "g1" {
		t.Fatalf("remove: key=%q ok=%v", key, ok)
	}
	if len(r.Keys()) != 0 {
		t.Fatalf("empty group should be deleted, keys=%v", r.Keys())
	}
	if f, ok := r.Direction(locA); !ok || f != geom.West {
		t.Fatalf("direction should survive removal: %v %v", f, ok)
	}
	if _, ok := r.Remove(locA); ok {
		t.Fatalf("second remove should be a no-op")
	}
}

func TestExitFor_SoleMember(t *testing.T) {
	r := New(nil)
	r.Add("g1", locA, geom.North)
	if _, ok := r.ExitFor(locA); ok {
		t.Fatalf("sole member has no exit")
	}
	if _, ok := r.ExitFor(locB); ok {
		t.Fatalf("non-member has no exit")
	}
}

func TestExitFor_TwoMembersDeterministic(t *testing.T) {
	r := New(rand.New(rand.NewSource(7)))
	r.Add("g1", locA, geom.North)
	r.Add("g1", locB, geom.South)
	for i := 0; i < 50; i++ {
		if got, ok := r.ExitFor(locA); !ok || got != locB {
			t.Fatalf("hub exit = %v %v want %v", got, ok, locB)
		}
		if got, ok := r.ExitFor(locB); !ok || got != locA {
			t.Fatalf("spoke exit = %v %v want %v", got, ok, locA)
		}
	}
}

func TestExitFor_HubIsUniformOverOthers(t *testing.T) {
	r := New(rand.New(rand.NewSource(42)))
	r.Add("g1", locA, geom.North)
	r.Add("g1", locB, geom.North)
	r.Add("g1", locC, geom.North)
	r.Add("g1", locD, geom.North)

	counts := map[geom.Location]int{}
	const n = 30000
	for i := 0; i < n; i++ {
		got, ok := r.ExitFor(locA)
		if !ok {
			t.Fatalf("hub should always have an exit")
		}
		counts[got]++
	}
	if counts[locA] != 0 {
		t.Fatalf("hub must never exit to itself")
	}
	for _, loc := range []geom.Location{locB, locC, locD} {
		share := float64(counts[loc]) / n
		if share < 0.30 || share > 0.37 {
			t.Fatalf("share for %v = %.3f, want ~1/3", loc, share)
		}
	}
	for _, loc := range []geom.Location{locB, locC, locD} {
		if got, _ := r.ExitFor(loc); got != locA {
			t.Fatalf("spoke %v should route to hub, got %v", loc, got)
		}
	}
}

func TestExitFor_HubRemovalPromotesNext(t *testing.T) {
	r := New(nil)
	r.Add("g1", locA, geom.North)
	r.Add("g1", locB, geom.North)
	r.Add("g1", locC, geom.North)
	r.Remove(locA)
	if hub, _ := r.Hub("g1"); hub != locB {
		t.Fatalf("hub = %v want %v", hub, locB)
	}
	if !r.IsHub(locB) || r.IsHub(locC) {
		t.Fatalf("IsHub mismatch after promotion")
	}
	if got, _ := r.ExitFor(locC); got != locB {
		t.Fatalf("spoke should route to new hub, got %v", got)
	}
	if got, _ := r.ExitFor(locB); got != locC {
		t.Fatalf("new hub should route to the remaining spoke, got %v", got)
	}
}

func TestSnapshotRestore_PreservesOrder(t *testing.T) {
	r := New(nil)
	r.Add("g1", locC, geom.North)
	r.Add("g1", locA, geom.East)
	r.Add("g1", locB, geom.South)
	r.Add("g2", locD, geom.West)
	snap := r.Snapshot()

	// Mutating the registry must not leak into the snapshot.
	r.Remove(locC)
	if snap.Groups[0].Members[0] != locC {
		t.Fatalf("snapshot aliased registry storage")
	}

	r2 := New(nil)
	if dropped := r2.Restore(snap); dropped != 0 {
		t.Fatalf("dropped = %d", dropped)
	}
	got := r2.Members("g1")
	want := []geom.Location{locC, locA, locB}
	if len(got) != len(want) {
		t.Fatalf("members = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("member %d = %v want %v", i, got[i], want[i])
		}
	}
	if f, _ := r2.Direction(locB); f != geom.South {
		t.Fatalf("direction = %s", f)
	}
	if snap.Endpoints() != 4 {
		t.Fatalf("endpoints = %d", snap.Endpoints())
	}
}

func TestRestore_DropsCrossGroupDuplicates(t *testing.T) {
	r := New(nil)
	dropped := r.Restore(Snapshot{Groups: []Group{
		{Key: "b", Members: []geom.Location{locA, locB}},
		{Key: "a", Members: []geom.Location{locA, locA}},
	}})
	if dropped != 2 {
		t.Fatalf("dropped = %d want 2", dropped)
	}
	if k, _ := r.GroupOf(locA); k != "a" {
		t.Fatalf("locA should stay in the first group by key order, got %q", k)
	}
	if got := r.Members("b"); len(got) != 1 || got[0] != locB {
		t.Fatalf("b = %v", got)
	}
}

func TestForgetDirection(t *testing.T) {
	r := New(nil)
	r.Add("g1", locA, geom.East)
	if r.ForgetDirection(locA) {
		t.Fatalf("members keep their direction")
	}
	r.Remove(locA)
	if !r.ForgetDirection(locA) {
		t.Fatalf("former member direction should be forgettable")
	}
	if _, ok := r.Direction(locA); ok {
		t.Fatalf("direction should be gone")
	}
}
