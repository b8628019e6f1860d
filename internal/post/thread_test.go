package post

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/identity"
)

// TestComposeNoteFillsRootRelayHint exercises spec.md section 4.2's
// recommended-relay hint: a fresh root reference's e-tag should carry
// the root's own inbox relay once it intersects the observed
// seen-on-relay set, instead of an empty hint.
func TestComposeNoteFillsRootRelayHint(t *testing.T) {
	c, st, _ := testComposer(t)

	root := identity.New(nil)
	rootPK, err := root.Generate("root-pass", 10)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	parent := &nostr.Event{
		Kind:      1,
		CreatedAt: nostr.Now(),
		Content:   "hello",
	}
	parent.PubKey = rootPK
	if err := root.SignEvent(parent); err != nil {
		t.Fatalf("sign parent: %v", err)
	}
	if err := st.PutEvent(parent); err != nil {
		t.Fatalf("PutEvent: %v", err)
	}

	declareInbox(t, st, rootPK, "wss://root-inbox")
	if err := st.MarkSeenOnRelay(parent.ID, "wss://root-inbox", 1); err != nil {
		t.Fatalf("MarkSeenOnRelay: %v", err)
	}

	ownInbox := []string{"wss://root-inbox"}
	out, err := c.ComposeNote(context.Background(), "re", parent.ID, ownInbox, nil)
	if err != nil {
		t.Fatalf("ComposeNote: %v", err)
	}

	var found bool
	for _, tag := range out.Event.Tags {
		if len(tag) >= 4 && tag[0] == "e" && tag[1] == parent.ID && tag[3] == "root" {
			found = true
			if tag[2] != "wss://root-inbox" {
				t.Errorf("want relay hint wss://root-inbox, got %q", tag[2])
			}
		}
	}
	if !found {
		t.Fatalf("want a root e-tag for %s, got %v", parent.ID, out.Event.Tags)
	}
}
