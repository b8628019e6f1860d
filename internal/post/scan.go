package post

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

var (
	hashtagRe = regexp.MustCompile(`#[a-zA-Z][a-zA-Z0-9_]*`)
	bech32Re  = regexp.MustCompile(`(?:nostr:)?(nevent1|naddr1|npub1|nprofile1)[02-9ac-hj-np-z]+`)
)

// scanReferences scans content for inline bech32 references
// (nevent/naddr/npub/nprofile) and hashtags, returning the e/a/p/t
// tags they imply. Referenced e/a entities get marker "mention".
func scanReferences(content string) nostr.Tags {
	var tags nostr.Tags
	seen := map[string]bool{}

	for _, m := range bech32Re.FindAllString(content, -1) {
		token := strings.TrimPrefix(m, "nostr:")
		prefix, value, err := nip19.Decode(token)
		if err != nil {
			continue
		}
		switch prefix {
		case "npub":
			pk, _ := value.(string)
			addUnique(&tags, seen, "p:"+pk, nostr.Tag{"p", pk})
		case "nprofile":
			ptr, _ := value.(nostr.ProfilePointer)
			addUnique(&tags, seen, "p:"+ptr.PublicKey, nostr.Tag{"p", ptr.PublicKey})
		case "nevent":
			ptr, _ := value.(nostr.EventPointer)
			relayHint := ""
			if len(ptr.Relays) > 0 {
				relayHint = ptr.Relays[0]
			}
			addUnique(&tags, seen, "e:"+ptr.ID, nostr.Tag{"e", ptr.ID, relayHint, "mention"})
		case "naddr":
			ptr, _ := value.(nostr.EntityPointer)
			addr := fmt.Sprintf("%d:%s:%s", ptr.Kind, ptr.PublicKey, ptr.Identifier)
			relayHint := ""
			if len(ptr.Relays) > 0 {
				relayHint = ptr.Relays[0]
			}
			addUnique(&tags, seen, "a:"+addr, nostr.Tag{"a", addr, relayHint, "mention"})
		}
	}

	for _, m := range hashtagRe.FindAllString(content, -1) {
		tag := strings.ToLower(m[1:])
		addUnique(&tags, seen, "t:"+tag, nostr.Tag{"t", tag})
	}

	return tags
}

func addUnique(tags *nostr.Tags, seen map[string]bool, key string, tag nostr.Tag) {
	if seen[key] {
		return
	}
	seen[key] = true
	*tags = append(*tags, tag)
}
