package protocol_test

import (
	"encoding/json"
	"testing"

	"teleportals.ai/internal/protocol"
)

func TestValidate_Samples(t *testing.T) {
	ok := map[string]string{
		protocol.TypeHello: `{"type":"HELLO","protocol_version":"1.0","actor_name":"bot1","capabilities":{"notices":true,"max_queue":16},"spawn":[0.5,64,0.5]}`,
		protocol.TypeInteract: `{"type":"INTERACT","protocol_version":"1.0","req_id":"r1",
			"loc":{"world":"world","pos":[0,64,0]},
			"item":{"kind":"END_CRYSTAL","count":1,"marker":"subspace_link","tags":{"depth":2}}}`,
		protocol.TypeBreak:       `{"type":"BREAK","protocol_version":"1.0","req_id":"r2","loc":{"world":"world","pos":[0,65,0]}}`,
		protocol.TypeEnter:       `{"type":"ENTER","protocol_version":"1.0","req_id":"r3","loc":{"world":"world","pos":[0,64,0]},"face":"UP","yaw":90,"pitch":-10}`,
		protocol.TypePlace:       `{"type":"PLACE","protocol_version":"1.0","req_id":"r4","loc":{"world":"world","pos":[1,2,3]},"material":"ENDER_CHEST","facing":"WEST"}`,
		protocol.TypeGiveKey:     `{"type":"GIVE_KEY","protocol_version":"1.0","req_id":"r5","link":"depth=2"}`,
		protocol.TypeLoadWorld:   `{"type":"LOAD_WORLD","protocol_version":"1.0","req_id":"r6","world_id":"world_the_end"}`,
		protocol.TypeStats:       `{"type":"STATS","protocol_version":"1.0","req_id":"r7"}`,
		protocol.TypeUnloadWorld: `{"type":"UNLOAD_WORLD","protocol_version":"1.0","req_id":"r8","world_id":"world_the_end"}`,
	}
	for typ, raw := range ok {
		if err := protocol.Validate(typ, []byte(raw)); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	bad := []struct {
		typ string
		raw string
	}{
		{protocol.TypeHello, `{"type":"HELLO","protocol_version":"1.0"}`},
		{protocol.TypeInteract, `{"type":"INTERACT","protocol_version":"1.0","req_id":"r1","loc":{"world":"world","pos":[0,64]},"item":{"kind":"X"}}`},
		{protocol.TypeEnter, `{"type":"ENTER","protocol_version":"1.0","req_id":"r3","loc":{"world":"w","pos":[0,0,0]},"face":"SIDEWAYS"}`},
		{protocol.TypePlace, `{"type":"PLACE","protocol_version":"1.0","req_id":"r4","loc":{"world":"w","pos":[0,0,0]},"material":"STONE","facing":"UP"}`},
		{protocol.TypeGiveKey, `{"type":"GIVE_KEY","protocol_version":"1.0","req_id":"r5","count":2}`},
		{protocol.TypeLoadWorld, `{"type":"LOAD_WORLD","protocol_version":"1.0","req_id":"r6","world_id":""}`},
		{protocol.TypeStats, `{"type":"STATS","protocol_version":"1.0"}`},
	}
	for _, c := range bad {
		if err := protocol.Validate(c.typ, []byte(c.raw)); err == nil {
			t.Fatalf("%s should be rejected: %s", c.typ, c.raw)
		}
	}
	if err := protocol.Validate("NOPE", []byte(`{}`)); err == nil {
		t.Fatalf("unknown type should be rejected")
	}
}

func TestValidate_WelcomeAsEncoded(t *testing.T) {
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "s1",
		ActorID:         "A1",
		CurrentWorldID:  "world",
		Worlds:          []string{"world", "world_nether"},
		Params: protocol.ServerParams{
			TickRateHz:    20,
			DefaultFacing: "NORTH",
			Frame:         "OBSIDIAN",
			PassiveAnchor: "ENDER_CHEST",
			ActiveAnchor:  "END_GATEWAY",
			KeyKind:       "END_CRYSTAL",
		},
	}
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatal(err)
	}
	if err := protocol.Validate(protocol.TypeWelcome, b); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	base, err := protocol.DecodeBase(b)
	if err != nil || base.Type != protocol.TypeWelcome || base.ProtocolVersion != protocol.Version {
		t.Fatalf("base = %+v %v", base, err)
	}
}
