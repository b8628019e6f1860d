package relay

import "github.com/pinpox/gossip/internal/store"

// RecommendedHint implements spec.md section 4.2's recommended-relay
// hint: intersect the reply target's observed seen-on set with the
// current user's inbox relays, falling back to the first seen-on
// relay if no intersection exists.
func RecommendedHint(st *store.Store, replyToEventID string, ownInboxRelays []string) (string, bool) {
	seen, err := st.GetSeenOnRelay(replyToEventID)
	if err != nil || len(seen) == 0 {
		return "", false
	}

	inbox := make(map[string]bool, len(ownInboxRelays))
	for _, url := range ownInboxRelays {
		inbox[url] = true
	}
	for _, s := range seen {
		if inbox[s.URL] {
			return s.URL, true
		}
	}
	return seen[0].URL, true
}
