package person

import (
	"testing"
	"time"

	"github.com/pinpox/gossip/internal/store"
)

type fakeFetcher struct {
	body []byte
	err  error
}

func (f *fakeFetcher) TryGet(url string, maxAge time.Duration) ([]byte, bool, error) {
	return f.body, true, f.err
}

func testRegistry(t *testing.T, fetcher URLFetcher) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewRegistry(st, fetcher), st
}

func TestSetMetadataAndMemoizedRead(t *testing.T) {
	r, _ := testRegistry(t, &fakeFetcher{})
	pk := "pk_a"

	if err := r.SetMetadata(pk, `{"name":"alice","picture":"https://x/a.png"}`, 100); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	m, err := r.Metadata(pk)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if m == nil || m.Name != "alice" {
		t.Fatalf("want name=alice, got %+v", m)
	}

	// Memoized: a second call must return the cached pointer's data
	// without needing the store again.
	m2, err := r.Metadata(pk)
	if err != nil {
		t.Fatalf("Metadata (cached): %v", err)
	}
	if m2.Name != "alice" {
		t.Errorf("cached metadata mismatch: %+v", m2)
	}
}

func TestSetMetadataOlderEventIgnored(t *testing.T) {
	r, _ := testRegistry(t, &fakeFetcher{})
	pk := "pk_b"

	if err := r.SetMetadata(pk, `{"name":"new"}`, 200); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := r.SetMetadata(pk, `{"name":"stale"}`, 100); err != nil {
		t.Fatalf("SetMetadata (stale): %v", err)
	}

	m, err := r.Metadata(pk)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if m.Name != "new" {
		t.Errorf("want newer metadata to win, got %q", m.Name)
	}
}

func TestValidateNIP05(t *testing.T) {
	pk := "abc123"
	body := []byte(`{"names":{"alice":"abc123"}}`)
	r, _ := testRegistry(t, &fakeFetcher{body: body})

	valid, err := r.ValidateNIP05(pk, "alice@example.com", 100)
	if err != nil {
		t.Fatalf("ValidateNIP05: %v", err)
	}
	if !valid {
		t.Errorf("want valid NIP-05 match")
	}

	p, err := r.st.GetPerson(pk)
	if err != nil {
		t.Fatalf("GetPerson: %v", err)
	}
	if !p.NIP05Valid || p.NIP05LastCheck != 100 {
		t.Errorf("want persisted validity, got %+v", p)
	}
}

func TestMuteAndFollowLists(t *testing.T) {
	r, _ := testRegistry(t, &fakeFetcher{})
	pk := "pk_c"

	if err := r.Mute(pk); err != nil {
		t.Fatalf("Mute: %v", err)
	}
	if muted, err := r.IsMuted(pk); err != nil || !muted {
		t.Errorf("want muted, got muted=%v err=%v", muted, err)
	}
	if err := r.Unmute(pk); err != nil {
		t.Fatalf("Unmute: %v", err)
	}
	if muted, _ := r.IsMuted(pk); muted {
		t.Errorf("want unmuted after Unmute")
	}

	if err := r.Follow(pk); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	members, err := r.ListMembers(0) // store.MutedSlot, unused after unmute
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("want empty muted slot, got %v", members)
	}
	if followed, _ := r.IsFollowed(pk); !followed {
		t.Errorf("want followed after Follow")
	}
}
