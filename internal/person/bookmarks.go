package person

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/store"
)

// BookmarkListKind is NIP-51's kind-10003 bookmark list: public e-tags
// for each publicly bookmarked event, NIP-44 self-encrypted content
// for the private half, the same public/private split BuildListEvent
// uses for PersonList.
const BookmarkListKind = 10003

// BuildBookmarkEvent assembles a kind-10003 event from entries,
// putting public entries on the event as e-tags and private entries
// into the NIP-44 self-encrypted content.
func BuildBookmarkEvent(ctx context.Context, entries []store.BookmarkEntry, kr nostr.Keyer) (nostr.Event, error) {
	var tags, private nostr.Tags
	for _, e := range entries {
		tag := nostr.Tag{"e", e.EventID}
		if e.Private {
			private = append(private, tag)
			continue
		}
		tags = append(tags, tag)
	}

	evt := nostr.Event{
		Kind:      BookmarkListKind,
		CreatedAt: nostr.Now(),
		Tags:      tags,
	}

	if len(private) > 0 {
		plaintext, err := json.Marshal(private)
		if err != nil {
			return nostr.Event{}, fmt.Errorf("BuildBookmarkEvent: marshal: %w", err)
		}
		ciphertext, err := selfEncrypt(ctx, kr, string(plaintext))
		if err != nil {
			return nostr.Event{}, fmt.Errorf("BuildBookmarkEvent: encrypt: %w", err)
		}
		evt.Content = ciphertext
	}

	if err := kr.SignEvent(ctx, &evt); err != nil {
		return evt, fmt.Errorf("BuildBookmarkEvent: sign: %w", err)
	}
	return evt, nil
}

// ParseBookmarkEvent returns every entry of a kind-10003 event: the
// public e-tags on the event itself, plus the private entries
// decrypted out of its content when present.
func ParseBookmarkEvent(ctx context.Context, evt *nostr.Event, kr nostr.Keyer) ([]store.BookmarkEntry, error) {
	entries := parseETags(evt.Tags, false)

	if evt.Content == "" {
		return entries, nil
	}
	plaintext, err := selfDecrypt(ctx, kr, evt.Content)
	if err != nil {
		return nil, fmt.Errorf("ParseBookmarkEvent: decrypt: %w", err)
	}

	var tags nostr.Tags
	if err := json.Unmarshal([]byte(plaintext), &tags); err != nil {
		return nil, fmt.Errorf("ParseBookmarkEvent: unmarshal: %w", err)
	}
	return append(entries, parseETags(tags, true)...), nil
}

func parseETags(tags nostr.Tags, private bool) []store.BookmarkEntry {
	var entries []store.BookmarkEntry
	for _, t := range tags {
		if len(t) < 2 || t[0] != "e" {
			continue
		}
		entries = append(entries, store.BookmarkEntry{EventID: t[1], Private: private})
	}
	return entries
}
