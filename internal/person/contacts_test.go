package person

import (
	"context"
	"sort"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/identity"
)

func testKeyer(t *testing.T) nostr.Keyer {
	t.Helper()
	m := identity.New(nil)
	if _, err := m.Generate("pass", 10); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return identity.AsKeyer(m)
}

func sortedPubkeys(members []ListMember) []string {
	var out []string
	for _, m := range members {
		out = append(out, m.Pubkey)
	}
	sort.Strings(out)
	return out
}

func TestBuildAndParseListEventRoundTrip(t *testing.T) {
	kr := testKeyer(t)
	ctx := context.Background()

	members := []ListMember{
		{Pubkey: "pk_public", Petname: "alice", Private: false},
		{Pubkey: "pk_private", Petname: "bob", Private: true},
	}

	evt, err := BuildListEvent(ctx, "follows", members, kr)
	if err != nil {
		t.Fatalf("BuildListEvent: %v", err)
	}

	// The public member must be a visible p-tag on the event itself;
	// the private one must not leak into the plaintext tags.
	var foundPublic bool
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "p" {
			if tag[1] == "pk_private" {
				t.Fatalf("private member leaked into public tags: %v", tag)
			}
			if tag[1] == "pk_public" {
				foundPublic = true
			}
		}
	}
	if !foundPublic {
		t.Fatalf("want public member as a visible p-tag, got %v", evt.Tags)
	}
	if evt.Content == "" {
		t.Fatalf("want non-empty content carrying the private member")
	}

	parsed, err := ParseListEvent(ctx, &evt, kr)
	if err != nil {
		t.Fatalf("ParseListEvent: %v", err)
	}
	if got := sortedPubkeys(parsed); len(got) != 2 || got[0] != "pk_private" || got[1] != "pk_public" {
		t.Fatalf("want both members back, got %v", got)
	}
	for _, m := range parsed {
		switch m.Pubkey {
		case "pk_public":
			if m.Private {
				t.Errorf("want pk_public parsed as public")
			}
			if m.Petname != "alice" {
				t.Errorf("want petname alice, got %q", m.Petname)
			}
		case "pk_private":
			if !m.Private {
				t.Errorf("want pk_private parsed as private")
			}
			if m.Petname != "bob" {
				t.Errorf("want petname bob, got %q", m.Petname)
			}
		}
	}
}

func TestBuildListEventAllPublicHasNoContent(t *testing.T) {
	kr := testKeyer(t)
	ctx := context.Background()

	members := []ListMember{{Pubkey: "pk_a", Private: false}}
	evt, err := BuildListEvent(ctx, "follows", members, kr)
	if err != nil {
		t.Fatalf("BuildListEvent: %v", err)
	}
	if evt.Content != "" {
		t.Errorf("want empty content when no member is private, got %q", evt.Content)
	}

	parsed, err := ParseListEvent(ctx, &evt, kr)
	if err != nil {
		t.Fatalf("ParseListEvent: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Pubkey != "pk_a" || parsed[0].Private {
		t.Fatalf("want one public member back, got %v", parsed)
	}
}
