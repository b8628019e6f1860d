package post

import (
	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/relay"
	"github.com/pinpox/gossip/internal/store"
)

// buildReplyTags implements the NIP-10 threading rules: a p tag for
// the parent's author (unless it's us), the parent's own p tags minus
// us, and e/a tags marking the thread root and the immediate parent.
// Any e-tag that doesn't already carry a relay hint is filled in with
// RecommendedHint. subject carries a "Re: " prefixed subject tag when
// the parent had one.
func buildReplyTags(st *store.Store, parent *store.Event, selfPubkey string, ownInboxRelays []string) (tags nostr.Tags, subject string) {
	if parent.PubKey != selfPubkey {
		tags = append(tags, nostr.Tag{"p", parent.PubKey})
	}
	for _, t := range parent.Tags {
		if len(t) >= 2 && t[0] == "p" && t[1] != selfPubkey && t[1] != parent.PubKey {
			tags = append(tags, nostr.Tag{"p", t[1]})
		}
	}

	hint := func(eventID string) string {
		h, ok := relay.RecommendedHint(st, eventID, ownInboxRelays)
		if !ok {
			return ""
		}
		return h
	}

	if rootTag, ok := repliesToRootTag(parent); ok {
		relayHint := ""
		if len(rootTag) > 2 {
			relayHint = rootTag[2]
		}
		if relayHint == "" {
			relayHint = hint(rootTag[1])
		}
		tags = append(tags, nostr.Tag{rootTag[0], rootTag[1], relayHint, "root"})
		tags = append(tags, nostr.Tag{"e", parent.ID, hint(parent.ID), "reply"})
	} else {
		tags = append(tags, nostr.Tag{"e", parent.ID, hint(parent.ID), "root"})
	}

	for _, t := range parent.Tags {
		if len(t) >= 2 && t[0] == "subject" {
			subject = "Re: " + t[1]
		}
	}
	return tags, subject
}

// repliesToRootTag returns parent's own thread-root reference: the
// e/a tag marked "root" if present, else (legacy, markerless scheme)
// its first e tag. ok is false when parent carries no reference at
// all, meaning parent itself is the root.
func repliesToRootTag(parent *store.Event) (tag nostr.Tag, ok bool) {
	for _, t := range parent.Tags {
		if len(t) >= 4 && (t[0] == "e" || t[0] == "a") && t[3] == "root" {
			return t, true
		}
	}
	for _, t := range parent.Tags {
		if len(t) >= 2 && t[0] == "e" && (len(t) < 4 || t[3] == "") {
			return t, true
		}
	}
	return nil, false
}
