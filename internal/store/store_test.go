package store

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/errs"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func signedEvent(t *testing.T, sk string, kind int, createdAt int64, tags Tags, content string) *Event {
	t.Helper()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("GetPublicKey: %v", err)
	}
	ev := &Event{
		PubKey:    pk,
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := ev.Sign(sk); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return ev
}

func TestPutEventRoundTrip(t *testing.T) {
	s := testStore(t)
	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, KindTextNote, 100, nil, "hello")

	if err := s.PutEvent(ev); err != nil {
		t.Fatalf("PutEvent: %v", err)
	}
	got, err := s.GetEvent(ev.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got == nil {
		t.Fatal("GetEvent returned nil")
	}
	if got.ID != ev.ID || got.Content != ev.Content || got.PubKey != ev.PubKey {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, ev)
	}
}

func TestPutEventDuplicate(t *testing.T) {
	s := testStore(t)
	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, KindTextNote, 100, nil, "hi")

	if err := s.PutEvent(ev); err != nil {
		t.Fatalf("first PutEvent: %v", err)
	}
	if err := s.PutEvent(ev); !errs.Is(err, errs.Duplicate) {
		t.Fatalf("second PutEvent: want Duplicate, got %v", err)
	}
	if err := s.PutEventIfNew(ev); err != nil {
		t.Fatalf("PutEventIfNew on existing event should be a no-op, got %v", err)
	}
}

func TestFindByFilterAuthorsAndKindsDescending(t *testing.T) {
	s := testStore(t)
	sk := nostr.GeneratePrivateKey()

	e1 := signedEvent(t, sk, KindTextNote, 100, nil, "a")
	e2 := signedEvent(t, sk, KindTextNote, 200, nil, "b")
	e3 := signedEvent(t, sk, KindReaction, 150, Tags{{"e", e1.ID}}, "+")

	for _, e := range []*Event{e1, e2, e3} {
		if err := s.PutEvent(e); err != nil {
			t.Fatalf("PutEvent: %v", err)
		}
	}

	pk, _ := nostr.GetPublicKey(sk)
	got, err := s.FindByFilter(Filter{Authors: []string{pk}, Kinds: []int{KindTextNote}}, nil)
	if err != nil {
		t.Fatalf("FindByFilter: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 events, got %d", len(got))
	}
	if got[0].ID != e2.ID || got[1].ID != e1.ID {
		t.Errorf("want descending [e2,e1], got [%s,%s]", got[0].ID, got[1].ID)
	}
}

func TestFindByFilterIdempotentPut(t *testing.T) {
	s := testStore(t)
	sk := nostr.GeneratePrivateKey()
	ev := signedEvent(t, sk, KindTextNote, 100, nil, "x")

	if err := s.PutEventIfNew(ev); err != nil {
		t.Fatalf("PutEventIfNew: %v", err)
	}
	if err := s.PutEventIfNew(ev); err != nil {
		t.Fatalf("PutEventIfNew (again): %v", err)
	}

	pk, _ := nostr.GetPublicKey(sk)
	got, err := s.FindByFilter(Filter{Authors: []string{pk}, Kinds: []int{KindTextNote}}, nil)
	if err != nil {
		t.Fatalf("FindByFilter: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want exactly one row after duplicate insert, got %d", len(got))
	}
}

func TestRelationshipDerivationReaction(t *testing.T) {
	s := testStore(t)
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)

	target := signedEvent(t, sk, KindTextNote, 100, nil, "parent")
	if err := s.PutEvent(target); err != nil {
		t.Fatalf("PutEvent target: %v", err)
	}
	reaction := signedEvent(t, sk, KindReaction, 110, Tags{{"e", target.ID}}, "🔥")
	if err := s.PutEvent(reaction); err != nil {
		t.Fatalf("PutEvent reaction: %v", err)
	}

	edges, err := s.RelationshipsByID(target.ID)
	if err != nil {
		t.Fatalf("RelationshipsByID: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("want 1 edge, got %d", len(edges))
	}
	if edges[0].Kind.Type != RelReaction || edges[0].Kind.ReactorPubkey != pk || edges[0].Kind.Char != "🔥" {
		t.Errorf("unexpected edge: %+v", edges[0].Kind)
	}
}

func TestDeleteEventLeavesRelationshipSticky(t *testing.T) {
	s := testStore(t)
	sk := nostr.GeneratePrivateKey()

	x := signedEvent(t, sk, KindTextNote, 100, nil, "will be deleted")
	if err := s.PutEvent(x); err != nil {
		t.Fatalf("PutEvent x: %v", err)
	}
	del := signedEvent(t, sk, KindDelete, 110, Tags{{"e", x.ID}}, "oops")
	if err := s.PutEvent(del); err != nil {
		t.Fatalf("PutEvent delete: %v", err)
	}

	if err := s.DeleteEvent(x.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}

	got, err := s.GetEvent(x.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got != nil {
		t.Errorf("want event gone after DeleteEvent, still present")
	}

	edges, err := s.RelationshipsByID(x.ID)
	if err != nil {
		t.Fatalf("RelationshipsByID: %v", err)
	}
	if len(edges) != 1 || edges[0].Kind.Type != RelDeletion {
		t.Errorf("want deletion edge to remain sticky, got %+v", edges)
	}
}

func TestDeletionFromDifferentAuthorIsIgnored(t *testing.T) {
	s := testStore(t)
	authorSK := nostr.GeneratePrivateKey()
	attackerSK := nostr.GeneratePrivateKey()

	x := signedEvent(t, authorSK, KindTextNote, 100, nil, "mine")
	if err := s.PutEvent(x); err != nil {
		t.Fatalf("PutEvent x: %v", err)
	}
	del := signedEvent(t, attackerSK, KindDelete, 110, Tags{{"e", x.ID}}, "not yours to delete")
	if err := s.PutEvent(del); err != nil {
		t.Fatalf("PutEvent delete: %v", err)
	}

	edges, err := s.RelationshipsByID(x.ID)
	if err != nil {
		t.Fatalf("RelationshipsByID: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("want no deletion edge from a non-author, got %+v", edges)
	}
}

func TestPruneOldEventsRespectsBookmarks(t *testing.T) {
	s := testStore(t)
	sk := nostr.GeneratePrivateKey()

	old := signedEvent(t, sk, KindTextNote, 100, nil, "old")
	bookmarkedOld := signedEvent(t, sk, KindTextNote, 101, nil, "old but kept")
	recent := signedEvent(t, sk, KindTextNote, 500, nil, "recent")
	for _, e := range []*Event{old, bookmarkedOld, recent} {
		if err := s.PutEvent(e); err != nil {
			t.Fatalf("PutEvent: %v", err)
		}
	}
	if err := s.SetBookmarks([]BookmarkEntry{{EventID: bookmarkedOld.ID}}); err != nil {
		t.Fatalf("SetBookmarks: %v", err)
	}

	removed, err := s.PruneOldEvents(200)
	if err != nil {
		t.Fatalf("PruneOldEvents: %v", err)
	}
	if removed != 1 {
		t.Fatalf("want 1 event removed, got %d", removed)
	}

	if has, _ := s.HasEvent(old.ID); has {
		t.Errorf("old event should have been pruned")
	}
	if has, _ := s.HasEvent(bookmarkedOld.ID); !has {
		t.Errorf("bookmarked event should survive pruning")
	}
	if has, _ := s.HasEvent(recent.ID); !has {
		t.Errorf("recent event should survive pruning")
	}
}

func TestReplaceableEventReturnsNewest(t *testing.T) {
	s := testStore(t)
	sk := nostr.GeneratePrivateKey()
	pk, _ := nostr.GetPublicKey(sk)

	older := signedEvent(t, sk, KindRelayList, 100, Tags{{"d", "profile"}}, "old")
	newer := signedEvent(t, sk, KindRelayList, 200, Tags{{"d", "profile"}}, "new")
	if err := s.PutEvent(older); err != nil {
		t.Fatalf("PutEvent older: %v", err)
	}
	if err := s.PutEvent(newer); err != nil {
		t.Fatalf("PutEvent newer: %v", err)
	}

	got, err := s.ReplaceableEvent(KindRelayList, pk, "profile")
	if err != nil {
		t.Fatalf("ReplaceableEvent: %v", err)
	}
	if got == nil || got.ID != newer.ID {
		t.Errorf("want newest replaceable event, got %+v", got)
	}
}
