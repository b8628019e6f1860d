package person

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// CategorizedListKind mirrors the source's kind-30000 "Chat-Friends"
// categorized people list, generalized from a single hardcoded
// "Chat-Friends" d-tag to any PersonList slot. Per NIP-51, a public
// member is a visible p-tag on the event itself; a private member
// lives only in the NIP-44 self-encrypted content, so relay operators
// and other clients never learn about it. Grounded on the teacher's
// buildContactsListEvent/parseContactsListEvent (nip51.go), which
// always fully self-encrypts; the public/private split here follows
// NIP-51's own list format instead.
const CategorizedListKind = 30000

// ListMember is one entry of a PersonList: a pubkey, its display
// petname, and whether it is private.
type ListMember struct {
	Pubkey  string
	Petname string
	Private bool
}

// BuildListEvent assembles a kind-30000 event for dTag: public
// members become p-tags on the event, private members go into the
// NIP-44 self-encrypted content as a ["p", pubkey, "", petname] tag
// array, and the event is signed by kr.
func BuildListEvent(ctx context.Context, dTag string, members []ListMember, kr nostr.Keyer) (nostr.Event, error) {
	tags := nostr.Tags{{"d", dTag}}
	var private nostr.Tags
	for _, m := range members {
		tag := nostr.Tag{"p", m.Pubkey, "", m.Petname}
		if m.Private {
			private = append(private, tag)
			continue
		}
		tags = append(tags, tag)
	}

	evt := nostr.Event{
		Kind:      CategorizedListKind,
		CreatedAt: nostr.Now(),
		Tags:      tags,
	}

	if len(private) > 0 {
		plaintext, err := json.Marshal(private)
		if err != nil {
			return nostr.Event{}, fmt.Errorf("BuildListEvent: marshal: %w", err)
		}
		ciphertext, err := selfEncrypt(ctx, kr, string(plaintext))
		if err != nil {
			return nostr.Event{}, fmt.Errorf("BuildListEvent: encrypt: %w", err)
		}
		evt.Content = ciphertext
	}

	if err := kr.SignEvent(ctx, &evt); err != nil {
		return evt, fmt.Errorf("BuildListEvent: sign: %w", err)
	}
	return evt, nil
}

// ParseListEvent returns every member of a kind-30000 list event: the
// public p-tags on the event itself, plus the private members
// decrypted out of its content when present.
func ParseListEvent(ctx context.Context, evt *nostr.Event, kr nostr.Keyer) ([]ListMember, error) {
	members := parsePTags(evt.Tags, false)

	if evt.Content == "" {
		return members, nil
	}
	plaintext, err := selfDecrypt(ctx, kr, evt.Content)
	if err != nil {
		return nil, fmt.Errorf("ParseListEvent: decrypt: %w", err)
	}

	var tags nostr.Tags
	if err := json.Unmarshal([]byte(plaintext), &tags); err != nil {
		return nil, fmt.Errorf("ParseListEvent: unmarshal: %w", err)
	}
	return append(members, parsePTags(tags, true)...), nil
}

func parsePTags(tags nostr.Tags, private bool) []ListMember {
	var members []ListMember
	for _, t := range tags {
		if len(t) < 2 || t[0] != "p" {
			continue
		}
		petname := ""
		if len(t) > 3 {
			petname = t[3]
		}
		members = append(members, ListMember{Pubkey: t[1], Petname: petname, Private: private})
	}
	return members
}

func selfEncrypt(ctx context.Context, kr nostr.Keyer, plaintext string) (string, error) {
	pk, err := kr.GetPublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("selfEncrypt: get pubkey: %w", err)
	}
	return kr.Encrypt(ctx, plaintext, pk)
}

func selfDecrypt(ctx context.Context, kr nostr.Keyer, ciphertext string) (string, error) {
	pk, err := kr.GetPublicKey(ctx)
	if err != nil {
		return "", fmt.Errorf("selfDecrypt: get pubkey: %w", err)
	}
	return kr.Decrypt(ctx, ciphertext, pk)
}
