package post

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/identity"
	"github.com/pinpox/gossip/internal/relay"
	"github.com/pinpox/gossip/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testComposer(t *testing.T) (*Composer, *store.Store, *identity.Manager) {
	t.Helper()
	st := testStore(t)
	reg := relay.NewRegistry(st, nil)
	id := identity.New(nil)
	if _, err := id.Generate("pass", 10); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return NewComposer(st, reg, id, Config{}), st, id
}

func declareInbox(t *testing.T, st *store.Store, pubkey, url string) {
	t.Helper()
	if err := st.PutRelay(&store.Relay{URL: url, Rank: 3}); err != nil {
		t.Fatalf("PutRelay: %v", err)
	}
	if err := st.PutPersonRelay(&store.PersonRelay{Pubkey: pubkey, URL: url, Read: true}); err != nil {
		t.Fatalf("PutPersonRelay: %v", err)
	}
}

// TestComposeNoteThreadsOntoParent exercises scenario S1.
func TestComposeNoteThreadsOntoParent(t *testing.T) {
	c, st, _ := testComposer(t)

	bob := identity.New(nil)
	pkB, err := bob.Generate("bob-pass", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	carol := identity.New(nil)
	pkC, err := carol.Generate("carol-pass", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rootID := "a1b2c3d4e5f6000000000000000000000000000000000000000000000000a1a1"

	parent := &nostr.Event{
		Kind:      1,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{"p", pkC},
			{"e", rootID, "", "root"},
		},
		Content: "hello",
	}
	parent.PubKey = pkB
	if err := bob.SignEvent(parent); err != nil {
		t.Fatalf("sign parent: %v", err)
	}
	if err := st.PutEvent(parent); err != nil {
		t.Fatalf("PutEvent: %v", err)
	}

	declareInbox(t, st, pkB, "wss://b1")
	declareInbox(t, st, pkC, "wss://c1")
	ownWrite := []string{"wss://own-write"}

	out, err := c.ComposeNote(context.Background(), "re", parent.ID, nil, ownWrite)
	if err != nil {
		t.Fatalf("ComposeNote: %v", err)
	}
	if out.Event.Kind != 1 {
		t.Fatalf("want kind 1, got %d", out.Event.Kind)
	}

	hasTag := func(want nostr.Tag) bool {
		for _, tag := range out.Event.Tags {
			if len(tag) < len(want) {
				continue
			}
			match := true
			for i := range want {
				if tag[i] != want[i] {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
		return false
	}
	if !hasTag(nostr.Tag{"p", pkB}) {
		t.Error("want p tag for parent author")
	}
	if !hasTag(nostr.Tag{"p", pkC}) {
		t.Error("want p tag copied from parent")
	}
	if !hasTag(nostr.Tag{"e", rootID}) {
		t.Error("want e tag for root")
	}
	if !hasTag(nostr.Tag{"e", parent.ID}) {
		t.Error("want e tag for immediate parent")
	}

	relaySet := toSet(out.Relays)
	for _, want := range []string{"wss://b1", "wss://c1", "wss://own-write"} {
		if !relaySet[want] {
			t.Errorf("want relay %s in target set, got %v", want, out.Relays)
		}
	}

	ok, err := out.Event.CheckSignature()
	if err != nil || !ok {
		t.Fatalf("want valid signature, ok=%v err=%v", ok, err)
	}
}

// TestComposeNIP04DMFallsBackToInbox exercises scenario S2: the peer
// has no DM-relay declaration, so the inbox relays are used instead.
func TestComposeNIP04DMFallsBackToInbox(t *testing.T) {
	c, st, _ := testComposer(t)
	peer := identity.New(nil)
	peerPK, err := peer.Generate("peer-pass", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	declareInbox(t, st, peerPK, "wss://peer-inbox")
	ownWrite := []string{"wss://own-write"}

	out, err := c.ComposeNIP04DM(context.Background(), peerPK, "hi", nil, ownWrite)
	if err != nil {
		t.Fatalf("ComposeNIP04DM: %v", err)
	}
	if out.Event.Kind != 4 {
		t.Fatalf("want kind 4, got %d", out.Event.Kind)
	}

	decrypted, err := peer.Decrypt(c.id.Pubkey(), out.Event.Content)
	if err != nil || decrypted != "hi" {
		t.Fatalf("want round-trip decrypt, got %q err=%v", decrypted, err)
	}

	relaySet := toSet(out.Relays)
	if !relaySet["wss://peer-inbox"] || !relaySet["wss://own-write"] {
		t.Fatalf("want inbox fallback + own write relay, got %v", out.Relays)
	}
}

func TestComposeNIP17DMProducesOneWrapPerParticipant(t *testing.T) {
	c, st, self := testComposer(t)
	bob := identity.New(nil)
	bobPK, err := bob.Generate("bob-pass", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	declareInbox(t, st, bobPK, "wss://bob-inbox")
	declareInbox(t, st, self.Pubkey(), "wss://self-inbox")

	out, err := c.ComposeNIP17DM(context.Background(), []string{bobPK}, "secret", nil, nil)
	if err != nil {
		t.Fatalf("ComposeNIP17DM: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("want one wrap per participant (self + bob), got %d", len(out))
	}
	for _, o := range out {
		if o.Event.Kind != 1059 {
			t.Errorf("want kind 1059 gift wrap, got %d", o.Event.Kind)
		}
		if len(o.Relays) == 0 {
			t.Error("want a non-empty relay target set")
		}
	}
}
