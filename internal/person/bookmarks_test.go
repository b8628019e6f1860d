package person

import (
	"context"
	"testing"

	"github.com/pinpox/gossip/internal/store"
)

func TestBuildAndParseBookmarkEventRoundTrip(t *testing.T) {
	kr := testKeyer(t)
	ctx := context.Background()

	entries := []store.BookmarkEntry{
		{EventID: "ev_public", Private: false},
		{EventID: "ev_private", Private: true},
	}

	evt, err := BuildBookmarkEvent(ctx, entries, kr)
	if err != nil {
		t.Fatalf("BuildBookmarkEvent: %v", err)
	}

	var foundPublic bool
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "e" {
			if tag[1] == "ev_private" {
				t.Fatalf("private entry leaked into public tags: %v", tag)
			}
			if tag[1] == "ev_public" {
				foundPublic = true
			}
		}
	}
	if !foundPublic {
		t.Fatalf("want public entry as a visible e-tag, got %v", evt.Tags)
	}
	if evt.Content == "" {
		t.Fatalf("want non-empty content carrying the private entry")
	}

	parsed, err := ParseBookmarkEvent(ctx, &evt, kr)
	if err != nil {
		t.Fatalf("ParseBookmarkEvent: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("want both entries back, got %v", parsed)
	}
	for _, e := range parsed {
		switch e.EventID {
		case "ev_public":
			if e.Private {
				t.Errorf("want ev_public parsed as public")
			}
		case "ev_private":
			if !e.Private {
				t.Errorf("want ev_private parsed as private")
			}
		default:
			t.Errorf("unexpected entry %+v", e)
		}
	}
}
