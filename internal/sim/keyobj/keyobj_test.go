package keyobj

import (
	"errors"
	"testing"
)

func TestLinkKey_OrderIndependent(t *testing.T) {
	a := map[string]int{}
	b := map[string]int{}
	names := []string{"unbreaking", "mending", "sharpness", "fire_aspect", "minecraft:loyalty"}
	for i, n := range names {
		a[n] = i + 1
	}
	for i := len(names) - 1; i >= 0; i-- {
		b[names[i]] = i + 1
	}
	ka, kb := LinkKey(a), LinkKey(b)
	if ka != kb {
		t.Fatalf("keys differ: %q vs %q", ka, kb)
	}
	want := "fire_aspect=4,mending=2,minecraft:loyalty=5,sharpness=3,unbreaking=1"
	if ka != want {
		t.Fatalf("got %q want %q", ka, want)
	}
}

func TestLinkKey_Empty(t *testing.T) {
	if got := LinkKey(nil); got != "" {
		t.Fatalf("nil tags: got %q", got)
	}
	if got := LinkKey(map[string]int{}); got != "" {
		t.Fatalf("empty tags: got %q", got)
	}
}

func TestParseLinkKey_RoundTrip(t *testing.T) {
	in := map[string]int{"efficiency": 5, "silk_touch": 1, "curse": -1}
	key := LinkKey(in)
	out, err := ParseLinkKey(key)
	if err != nil {
		t.Fatalf("parse %q: %v", key, err)
	}
	if LinkKey(out) != key || len(out) != len(in) {
		t.Fatalf("round trip mismatch: %v vs %v", out, in)
	}
}

func TestParseLinkKey_Rejects(t *testing.T) {
	for _, k := range []string{"a", "a=x", "=1", "b=1,a=2", "a=1,a=1", "a=1,", "a=01"} {
		if _, err := ParseLinkKey(k); err == nil {
			t.Fatalf("expected %q to be rejected", k)
		}
	}
	if _, err := ParseLinkKey("b=1,a=2"); !errors.Is(err, ErrNotCanonical) {
		t.Fatalf("unsorted key should be ErrNotCanonical, got %v", err)
	}
}

func TestCodec_IsKeyObject(t *testing.T) {
	c := DefaultCodec()
	if c.IsKeyObject(nil) {
		t.Fatalf("nil item is not a key")
	}
	plain := &Item{Kind: c.Kind, Tags: map[string]int{"a": 1}}
	if c.IsKeyObject(plain) {
		t.Fatalf("item without marker is not a key")
	}
	if got := c.ComputeLinkKey(plain); got != "" {
		t.Fatalf("non-key ComputeLinkKey = %q", got)
	}
	key, err := c.Mint("", 1)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !c.IsKeyObject(&key) {
		t.Fatalf("minted item should be a key")
	}
	if got := c.ComputeLinkKey(&key); got != "" {
		t.Fatalf("blank key should have empty link, got %q", got)
	}
}

func TestCodec_EmbedThenCompute(t *testing.T) {
	c := DefaultCodec()
	key := "depth_strider=3,power=5"
	it, err := c.EmbedLinkKey(Item{Kind: "BOOK", Tags: map[string]int{"x": 9}}, key)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got := c.ComputeLinkKey(&it); got != key {
		t.Fatalf("got %q want %q", got, key)
	}
	if it.Kind != "BOOK" {
		t.Fatalf("embed should keep kind, got %q", it.Kind)
	}
	if _, err := c.EmbedLinkKey(it, "   "); err == nil {
		t.Fatalf("blank key should not embed")
	}
}

func TestCodec_NamedLinksRoundTrip(t *testing.T) {
	c := DefaultCodec()
	for _, key := range []string{"g1", "DAMAGE_ALL:5,KNOCKBACK:2", "power=5,depth_strider=3"} {
		it, err := c.Mint(key, 1)
		if err != nil {
			t.Fatalf("mint %q: %v", key, err)
		}
		if it.Link != key || it.Tags != nil {
			t.Fatalf("%q should be carried as a named link, got %+v", key, it)
		}
		if got := c.ComputeLinkKey(&it); got != key {
			t.Fatalf("got %q want %q", got, key)
		}
	}

	named, _ := c.Mint("g1", 1)
	tagged, err := c.EmbedLinkKey(named, "a=1")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if tagged.Link != "" || c.ComputeLinkKey(&tagged) != "a=1" {
		t.Fatalf("canonical key should replace the named link, got %+v", tagged)
	}
}

func TestItem_CloneIsDeep(t *testing.T) {
	it := Item{Tags: map[string]int{"a": 1}}
	cp := it.WithTag("b", 2)
	if _, ok := it.Tags["b"]; ok {
		t.Fatalf("WithTag mutated the original")
	}
	if cp.WithTag("bad name", 1).Tags["bad name"] != 0 {
		t.Fatalf("invalid tag name should be ignored")
	}
}
