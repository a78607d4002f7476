// Package keyobj models the portable key object and derives link keys from its
// attribute tags.
//
// Tags are the representation. The canonical link key string
// ("name=level,name=level", names sorted) only exists at the boundary: as a
// registry key, in the links document and on the wire. Keys that are not a
// canonical tag set (hand-written "g1", legacy "enchant:lvl") are carried
// verbatim in Item.Link.
package keyobj

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	segmentSep = ","
	levelSep   = "="
)

var ErrNotCanonical = errors.New("link key is not in canonical form")

// Item is an inventory-style object. Only Marker and Tags matter to the link
// machinery; Kind, Label and Count are carried for the host.
type Item struct {
	Kind   string         `json:"kind"`
	Count  int            `json:"count,omitempty"`
	Label  string         `json:"label,omitempty"`
	Marker string         `json:"marker,omitempty"`
	Tags   map[string]int `json:"tags,omitempty"`
	// Link is a named key with no tag form. It takes precedence over Tags.
	Link string `json:"link,omitempty"`
}

func (it Item) Clone() Item {
	out := it
	if it.Tags != nil {
		out.Tags = make(map[string]int, len(it.Tags))
		for k, v := range it.Tags {
			out.Tags[k] = v
		}
	}
	return out
}

// WithTag returns a copy of it with name set to level. Invalid names are ignored.
func (it Item) WithTag(name string, level int) Item {
	out := it.Clone()
	if !ValidTagName(name) {
		return out
	}
	if out.Tags == nil {
		out.Tags = map[string]int{}
	}
	out.Tags[name] = level
	return out
}

// ValidTagName rejects names that would break the canonical encoding.
func ValidTagName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if unicode.IsSpace(r) || strings.ContainsRune(segmentSep+levelSep, r) {
			return false
		}
	}
	return true
}

// LinkKey canonicalises a tag set. The result is independent of map iteration
// order; an empty or nil set yields "".
func LinkKey(tags map[string]int) string {
	if len(tags) == 0 {
		return ""
	}
	names := make([]string, 0, len(tags))
	for name := range tags {
		if ValidTagName(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	segs := make([]string, len(names))
	for i, name := range names {
		segs[i] = name + levelSep + strconv.Itoa(tags[name])
	}
	return strings.Join(segs, segmentSep)
}

// ParseLinkKey is the inverse of LinkKey. Non-canonical input (unsorted,
// duplicated or padded segments) is rejected.
func ParseLinkKey(key string) (map[string]int, error) {
	tags := map[string]int{}
	if key == "" {
		return tags, nil
	}
	for _, seg := range strings.Split(key, segmentSep) {
		name, lvl, ok := strings.Cut(seg, levelSep)
		if !ok || !ValidTagName(name) {
			return nil, fmt.Errorf("bad segment %q", seg)
		}
		n, err := strconv.Atoi(lvl)
		if err != nil {
			return nil, fmt.Errorf("bad level in %q: %w", seg, err)
		}
		if _, dup := tags[name]; dup {
			return nil, fmt.Errorf("duplicate tag %q", name)
		}
		tags[name] = n
	}
	if LinkKey(tags) != key {
		return nil, ErrNotCanonical
	}
	return tags, nil
}

// Codec recognises and mints key objects of one configured kind.
type Codec struct {
	Kind   string `yaml:"kind" json:"kind"`
	Label  string `yaml:"label" json:"label"`
	Marker string `yaml:"marker" json:"marker"`
}

func DefaultCodec() Codec {
	return Codec{Kind: "END_CRYSTAL", Label: "Gateway Prism", Marker: "subspace_link"}
}

// IsKeyObject is true iff the item carries the codec's marker.
func (c Codec) IsKeyObject(it *Item) bool {
	return it != nil && c.Marker != "" && it.Marker == c.Marker
}

// ComputeLinkKey returns the link key of a key object. Non-key objects and
// key objects with neither a named link nor tags both yield "".
func (c Codec) ComputeLinkKey(it *Item) string {
	if !c.IsKeyObject(it) {
		return ""
	}
	if it.Link != "" {
		return it.Link
	}
	return LinkKey(it.Tags)
}

// EmbedLinkKey rewrites it so that ComputeLinkKey returns key. A canonical key
// becomes tags; any other key is stored verbatim as a named link.
func (c Codec) EmbedLinkKey(it Item, key string) (Item, error) {
	if key != "" && strings.TrimSpace(key) == "" {
		return it, fmt.Errorf("blank link key %q", key)
	}
	out := it.Clone()
	out.Marker = c.Marker
	out.Link = ""
	tags, err := ParseLinkKey(key)
	if err != nil {
		out.Tags = nil
		out.Link = key
		return out, nil
	}
	out.Tags = tags
	if len(tags) == 0 {
		out.Tags = nil
	}
	return out, nil
}

// Mint creates count key objects linked to key.
func (c Codec) Mint(key string, count int) (Item, error) {
	if count <= 0 {
		count = 1
	}
	return c.EmbedLinkKey(Item{Kind: c.Kind, Label: c.Label, Count: count}, key)
}

// MintTags is Mint for a tag set that has not been canonicalised yet.
func (c Codec) MintTags(tags map[string]int, count int) Item {
	it, err := c.Mint(LinkKey(tags), count)
	if err != nil {
		// LinkKey output is never blank.
		panic(err)
	}
	return it
}
