package identity

import (
	"context"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip13"

	"github.com/pinpox/gossip/internal/errs"
)

// mineAndSign iterates a "nonce" tag on pre until nip13.Check accepts
// the resulting id at zeroBits, then signs it. nip13 only ships a
// difficulty checker, not a miner with progress reporting, so the
// mining loop itself is hand-rolled against nostr.Event.GetID.
func mineAndSign(ctx context.Context, pre *nostr.Event, sk string, zeroBits int, progress func(attempts int)) error {
	nonceIdx := -1
	for i, tag := range pre.Tags {
		if len(tag) > 0 && tag[0] == "nonce" {
			nonceIdx = i
			break
		}
	}
	if nonceIdx == -1 {
		pre.Tags = append(pre.Tags, nostr.Tag{"nonce", "0", strconv.Itoa(zeroBits)})
		nonceIdx = len(pre.Tags) - 1
	} else if len(pre.Tags[nonceIdx]) < 3 {
		pre.Tags[nonceIdx] = append(pre.Tags[nonceIdx], strconv.Itoa(zeroBits))
	} else {
		pre.Tags[nonceIdx][2] = strconv.Itoa(zeroBits)
	}

	attempts := 0
	for nonce := uint64(0); ; nonce++ {
		select {
		case <-ctx.Done():
			return errs.New(errs.General, ctx.Err(), "identity: sign_event_with_pow canceled")
		default:
		}

		pre.Tags[nonceIdx][1] = strconv.FormatUint(nonce, 10)
		pre.ID = pre.GetID()
		attempts++
		if progress != nil && attempts%4096 == 0 {
			progress(attempts)
		}

		if nip13.Check(pre.ID, zeroBits) == nil {
			if err := pre.Sign(sk); err != nil {
				return errs.New(errs.General, err, "identity: sign_event_with_pow")
			}
			if progress != nil {
				progress(attempts)
			}
			return nil
		}
	}
}
