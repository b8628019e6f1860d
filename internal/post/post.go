// Package post builds the three flavors of outgoing event the source
// supports — a normal note, a NIP-04 direct message, and a NIP-17
// gift-wrapped direct message — each paired with the set of relays it
// should be published to.
package post

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/identity"
	"github.com/pinpox/gossip/internal/relay"
	"github.com/pinpox/gossip/internal/store"
)

// minRelaysPerRecipient is how many inbox relays a single p-tagged
// recipient contributes to a note's target set before the selector's
// own top-up logic kicks in.
const minRelaysPerRecipient = 2

// Outgoing pairs a ready-to-publish event with the relays it targets.
type Outgoing struct {
	Event  nostr.Event
	Relays []string
}

// Config holds the composer's tunables.
type Config struct {
	// ClientTag, when true, appends ["client","gossip"] to every note.
	ClientTag bool
	// PoWZeroBits, when > 0, mines every signed note (not DMs) to at
	// least this many leading zero bits before signing.
	PoWZeroBits int
}

// Composer assembles and signs outgoing events. It needs the event
// store (to resolve reply parents), the relay registry (to target
// recipients' inboxes), and an unlocked identity (to sign/encrypt).
type Composer struct {
	st  *store.Store
	reg *relay.Registry
	id  *identity.Manager
	cfg Config
}

func NewComposer(st *store.Store, reg *relay.Registry, id *identity.Manager, cfg Config) *Composer {
	return &Composer{st: st, reg: reg, id: id, cfg: cfg}
}

// ComposeNote builds a kind-1 note. If replyTo is non-empty it is
// threaded onto that parent per NIP-10. ownReadRelays/ownWriteRelays
// are the local user's own declared relays, used for selector top-up
// and appended to every note's target set.
func (c *Composer) ComposeNote(ctx context.Context, content, replyTo string, ownReadRelays, ownWriteRelays []string) (Outgoing, error) {
	self := c.id.Pubkey()

	tags := scanReferences(content)
	if c.cfg.ClientTag {
		tags = append(tags, nostr.Tag{"client", "gossip"})
	}

	if replyTo != "" {
		parent, err := c.st.GetEvent(replyTo)
		if err != nil {
			return Outgoing{}, err
		}
		if parent != nil {
			replyTags, subject := buildReplyTags(c.st, parent, self, ownReadRelays)
			tags = append(tags, replyTags...)
			if subject != "" {
				tags = append(tags, nostr.Tag{"subject", subject})
			}
		}
	}

	pre := &nostr.Event{
		Kind:      nostr.KindTextNote,
		CreatedAt: nostr.Now(),
		Tags:      dedupeTags(tags),
		Content:   content,
		PubKey:    self,
	}
	if err := c.sign(ctx, pre); err != nil {
		return Outgoing{}, err
	}

	recipients := pTagValues(pre.Tags)
	now := time.Now().Unix()
	relays := append([]string{}, ownWriteRelays...)
	seen := toSet(relays)
	for _, pk := range recipients {
		if pk == self {
			continue
		}
		inbox, err := relay.SelectRelays(c.reg, pk, relay.Inbox, minRelaysPerRecipient, ownReadRelays, ownWriteRelays, false, now)
		if err != nil {
			continue
		}
		for _, sr := range inbox {
			if !seen[sr.URL] {
				relays = append(relays, sr.URL)
				seen[sr.URL] = true
			}
		}
	}

	return Outgoing{Event: *pre, Relays: relays}, nil
}

func (c *Composer) sign(ctx context.Context, pre *nostr.Event) error {
	if c.cfg.PoWZeroBits > 0 {
		return c.id.SignEventWithPoW(ctx, pre, c.cfg.PoWZeroBits, nil)
	}
	return c.id.SignEvent(pre)
}

func pTagValues(tags nostr.Tags) []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range tags {
		if len(t) >= 2 && t[0] == "p" && !seen[t[1]] {
			out = append(out, t[1])
			seen[t[1]] = true
		}
	}
	return out
}

func dedupeTags(tags nostr.Tags) nostr.Tags {
	seen := map[string]bool{}
	out := make(nostr.Tags, 0, len(tags))
	for _, t := range tags {
		if len(t) < 2 {
			out = append(out, t)
			continue
		}
		key := t[0] + "\x00" + t[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

func dedupeStrings(ss []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
