package relay

import (
	"testing"

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

// TestSelectRelaysTopUp exercises scenario S6: two declared Inbox
// relays for the target pubkey, both rank 3 with a clean history,
// should score 20 and sort first; with min=4 the selector tops up with
// two of the caller's own WRITE relays at score 1.
func TestSelectRelaysTopUp(t *testing.T) {
	st := testStore(t)
	reg := NewRegistry(st, nil)

	pubkey := "pk_b"
	for _, url := range []string{"wss://r1", "wss://r2"} {
		if err := st.PutRelay(&store.Relay{URL: url, Rank: 3}); err != nil {
			t.Fatalf("PutRelay: %v", err)
		}
		if err := st.PutPersonRelay(&store.PersonRelay{Pubkey: pubkey, URL: url, Read: true}); err != nil {
			t.Fatalf("PutPersonRelay: %v", err)
		}
	}

	ownWrite := []string{"wss://own-write-1", "wss://own-write-2"}
	got, err := SelectRelays(reg, pubkey, Inbox, 4, nil, ownWrite, false, 1000)
	if err != nil {
		t.Fatalf("SelectRelays: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("want 4 entries, got %d (%+v)", len(got), got)
	}
	if got[0].Score != 20 || got[1].Score != 20 {
		t.Errorf("want first two entries scored 20, got %+v", got[:2])
	}
	for _, sr := range got[2:] {
		if sr.Score != topUpScore {
			t.Errorf("want top-up score %v, got %v for %s", topUpScore, sr.Score, sr.URL)
		}
	}
}

func TestSelectRelaysDiscardsAvoided(t *testing.T) {
	st := testStore(t)
	reg := NewRegistry(st, nil)

	pubkey := "pk_c"
	if err := st.PutRelay(&store.Relay{URL: "wss://banned", Rank: 0}); err != nil {
		t.Fatalf("PutRelay: %v", err)
	}
	if err := st.PutPersonRelay(&store.PersonRelay{Pubkey: pubkey, URL: "wss://banned", Read: true}); err != nil {
		t.Fatalf("PutPersonRelay: %v", err)
	}

	got, err := SelectRelays(reg, pubkey, Inbox, 0, nil, nil, false, 1000)
	if err != nil {
		t.Fatalf("SelectRelays: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want rank-0 relay discarded, got %+v", got)
	}
}

func TestSelectRelaysDMOnlyUsesDMRows(t *testing.T) {
	st := testStore(t)
	reg := NewRegistry(st, nil)

	pubkey := "pk_d"
	if err := st.PutRelay(&store.Relay{URL: "wss://dm1", Rank: 3}); err != nil {
		t.Fatalf("PutRelay: %v", err)
	}
	if err := st.PutRelay(&store.Relay{URL: "wss://inbox-only", Rank: 3}); err != nil {
		t.Fatalf("PutRelay: %v", err)
	}
	if err := st.PutPersonRelay(&store.PersonRelay{Pubkey: pubkey, URL: "wss://dm1", DM: true}); err != nil {
		t.Fatalf("PutPersonRelay: %v", err)
	}
	if err := st.PutPersonRelay(&store.PersonRelay{Pubkey: pubkey, URL: "wss://inbox-only", Read: true}); err != nil {
		t.Fatalf("PutPersonRelay: %v", err)
	}

	got, err := SelectRelays(reg, pubkey, DM, 0, nil, nil, false, 1000)
	if err != nil {
		t.Fatalf("SelectRelays: %v", err)
	}
	if len(got) != 1 || got[0].URL != "wss://dm1" {
		t.Errorf("want only the DM-flagged relay, got %+v", got)
	}
}
