package store

import (
	nostr "github.com/nbd-wtf/go-nostr"
)

// Event is the signed Nostr record spec.md section 3 describes. It is
// a direct alias of nostr.Event: that type already carries id, author
// (PubKey), created_at (CreatedAt), kind (Kind), tags (Tags), content
// (Content), and sig (Sig), and already knows how to hash/sign/verify
// itself canonically — reimplementing that would duplicate NIP-01,
// which is explicitly out of scope (spec.md section 1, Non-goals).
type Event = nostr.Event

// Tag and Tags are re-exported for callers that build tag lists
// without importing go-nostr directly.
type Tag = nostr.Tag
type Tags = nostr.Tags

// Filter mirrors spec.md section 4.1's query surface: ids, authors,
// kinds, tags, since, until, limit. It is a restriction of nostr.Filter
// rather than a reuse of it, because FindByFilter's execution strategy
// needs to reject filters it can't serve from an index (UnindexedQuery)
// and nostr.Filter carries fields (Search, subscription semantics) that
// don't apply to a local store query.
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	// Tags maps a tag name to the set of acceptable values. Only the
	// indexed tag names ("a", "d", "p", "delegation") can match; any
	// other name (e.g. "e" or "t") finds no events.
	Tags    map[string][]string
	Since   *int64
	Until   *int64
	Limit   int
}

// Predicate is an additional filter applied after the index scan and
// since/until bounds, e.g. to filter by content substring.
type Predicate func(*Event) bool
