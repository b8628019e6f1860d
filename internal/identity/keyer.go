package identity

import (
	"context"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/errs"
)

// keyerAdapter satisfies nostr.Keyer on top of a Manager, for callers
// (internal/person's list builder, internal/post) that are written
// against that interface rather than Manager's own method set.
type keyerAdapter struct{ m *Manager }

// AsKeyer returns a nostr.Keyer backed by m. GetPublicKey needs only a
// public key to be set; every other call requires m to be Ready(), and
// callers see NoPrivateKey wrapped as the interface's own error return.
func AsKeyer(m *Manager) nostr.Keyer { return keyerAdapter{m: m} }

func (k keyerAdapter) GetPublicKey(ctx context.Context) (string, error) {
	if pk := k.m.Pubkey(); pk != "" {
		return pk, nil
	}
	return "", errs.New(errs.NoPrivateKey, nil, "identity: no public key set")
}

func (k keyerAdapter) SignEvent(ctx context.Context, evt *nostr.Event) error {
	return k.m.SignEvent(evt)
}

func (k keyerAdapter) Encrypt(ctx context.Context, plaintext, recipientPublicKey string) (string, error) {
	return k.m.Encrypt(recipientPublicKey, plaintext, NIP44)
}

func (k keyerAdapter) Decrypt(ctx context.Context, ciphertext, senderPublicKey string) (string, error) {
	return k.m.Decrypt(senderPublicKey, ciphertext)
}
