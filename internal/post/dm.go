package post

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip17"

	"github.com/pinpox/gossip/internal/identity"
	"github.com/pinpox/gossip/internal/relay"
)

// ComposeNIP04DM builds a legacy kind-4 encrypted direct message.
// Relay set is the peer's declared DM relays, falling back to their
// inbox relays, plus our own WRITE relays.
func (c *Composer) ComposeNIP04DM(ctx context.Context, peer, content string, ownReadRelays, ownWriteRelays []string) (Outgoing, error) {
	ciphertext, err := c.id.Encrypt(peer, content, identity.NIP04)
	if err != nil {
		return Outgoing{}, err
	}

	pre := &nostr.Event{
		Kind:      nostr.KindEncryptedDirectMessage,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{"p", peer}},
		Content:   ciphertext,
		PubKey:    c.id.Pubkey(),
	}
	if err := c.id.SignEvent(pre); err != nil {
		return Outgoing{}, err
	}

	relays, err := c.dmRelaysWithInboxFallback(peer, ownReadRelays, ownWriteRelays)
	if err != nil {
		return Outgoing{}, err
	}
	relays = dedupeStrings(append(relays, ownWriteRelays...))

	return Outgoing{Event: *pre, Relays: relays}, nil
}

// ComposeNIP17DM builds one gift-wrapped (kind-1059) event per
// participant — every recipient plus a self-copy — each encrypted so
// only that participant can unwrap it, per the source's NIP-17 flow.
// The inner rumor (kind 14) carries every participant as a p tag.
func (c *Composer) ComposeNIP17DM(ctx context.Context, recipients []string, content string, ownReadRelays, ownWriteRelays []string) ([]Outgoing, error) {
	self := c.id.Pubkey()
	participants := dedupeStrings(append([]string{self}, recipients...))
	kr := identity.AsKeyer(c.id)

	out := make([]Outgoing, 0, len(participants))
	for _, target := range participants {
		var extraTags nostr.Tags
		for _, p := range participants {
			if p != target {
				extraTags = append(extraTags, nostr.Tag{"p", p})
			}
		}

		_, wrap, err := nip17.PrepareMessage(ctx, content, extraTags, kr, target, nil)
		if err != nil {
			return nil, err
		}

		var relays []string
		if target == self {
			relays, err = c.dmRelaysWithInboxFallback(self, ownReadRelays, ownWriteRelays)
		} else {
			relays, err = c.dmRelaysWithInboxFallback(target, ownReadRelays, ownWriteRelays)
		}
		if err != nil {
			return nil, err
		}

		out = append(out, Outgoing{Event: *wrap, Relays: relays})
	}
	return out, nil
}

// dmRelaysWithInboxFallback selects pubkey's declared DM relays, or
// if none are declared, its inbox relays.
func (c *Composer) dmRelaysWithInboxFallback(pubkey string, ownReadRelays, ownWriteRelays []string) ([]string, error) {
	now := time.Now().Unix()
	dm, err := relay.SelectRelays(c.reg, pubkey, relay.DM, 1, ownReadRelays, ownWriteRelays, false, now)
	if err != nil {
		return nil, err
	}
	if len(dm) > 0 {
		return urlsOf(dm), nil
	}
	inbox, err := relay.SelectRelays(c.reg, pubkey, relay.Inbox, minRelaysPerRecipient, ownReadRelays, ownWriteRelays, false, now)
	if err != nil {
		return nil, err
	}
	return urlsOf(inbox), nil
}

func urlsOf(scored []relay.ScoredRelay) []string {
	urls := make([]string, len(scored))
	for i, sr := range scored {
		urls[i] = sr.URL
	}
	return urls
}
