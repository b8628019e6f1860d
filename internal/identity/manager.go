// Package identity holds the user's Nostr keypair and performs every
// operation that needs the secret key: signing, proof-of-work mining,
// payload encryption, and gift-wrap unwrapping. It is the single place
// in the process that ever sees plaintext key material.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip04"
	"github.com/nbd-wtf/go-nostr/nip19"
	"github.com/nbd-wtf/go-nostr/nip44"
	"github.com/nbd-wtf/go-nostr/nip49"
	"github.com/nbd-wtf/go-nostr/nip59"

	"github.com/pinpox/gossip/internal/errs"
)

// State is the identity lifecycle spec.md section 4.4 describes.
type State int

const (
	None State = iota
	Public
	Locked
	Unlocked
)

func (s State) String() string {
	switch s {
	case Public:
		return "Public"
	case Locked:
		return "Locked"
	case Unlocked:
		return "Unlocked"
	default:
		return "None"
	}
}

// CurrentKDFLogN is the scrypt cost parameter new encrypted keys are
// stored with. set_encrypted_private_key blobs written at an older
// log_n are upgraded to this value the next time unlock succeeds.
const CurrentKDFLogN uint8 = 16

// Manager is the process-wide identity singleton. Every method is
// safe for concurrent use. Generate derives and encrypts its key before
// taking the write lock; Unlock and ChangePassphrase hold the write
// lock through their passphrase decryption and re-encryption. No lock
// is held across network I/O.
type Manager struct {
	mu sync.RWMutex

	state  State
	pubkey string
	epk    string // ncryptsec bech32, set once state >= Locked
	sk     string // hex secret key, only non-empty while Unlocked
	logN   uint8

	// onKeyChange is invoked, with the lock released, after every
	// successful transition that makes a secret key active (generate,
	// unlock, change_passphrase). cmd/gossipd wires this to record the
	// own pubkey in the store and re-index held gift wraps.
	onKeyChange func()
}

// New constructs a Manager in state None. onKeyChange may be nil.
func New(onKeyChange func()) *Manager {
	return &Manager{onKeyChange: onKeyChange}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Pubkey returns the hex public key, or "" in state None.
func (m *Manager) Pubkey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pubkey
}

// Ready reports whether the manager currently holds plaintext key
// material, i.e. can sign and decrypt. Satisfies store.GiftUnwrapper.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == Unlocked
}

// Generate creates a fresh keypair, encrypts it under pass at logN,
// and transitions straight to Unlocked.
func (m *Manager) Generate(pass string, logN uint8) (pubkey string, err error) {
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return "", errs.New(errs.General, err, "identity: derive pubkey")
	}
	epk, err := nip49.Encrypt(sk, pass, logN, 0)
	if err != nil {
		return "", errs.New(errs.General, err, "identity: encrypt new key")
	}

	m.mu.Lock()
	m.state = Unlocked
	m.pubkey = pk
	m.epk = epk
	m.sk = sk
	m.logN = logN
	cb := m.onKeyChange
	m.mu.Unlock()

	if cb != nil {
		cb()
	}
	return pk, nil
}

// SetEncryptedPrivateKey attaches a previously exported ncryptsec blob
// to a known public key without decrypting it, transitioning to
// Locked. The public key must be supplied separately: unlike an
// unencrypted key, an ncryptsec envelope does not itself reveal which
// pubkey it belongs to.
func (m *Manager) SetEncryptedPrivateKey(pubkey, epk string) error {
	if pubkey == "" || epk == "" {
		return errs.New(errs.General, nil, "identity: pubkey and epk are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Locked
	m.pubkey = pubkey
	m.epk = epk
	m.sk = ""
	return nil
}

// Unlock decrypts the stored epk with pass, transitioning to
// Unlocked. If the envelope was encrypted at an older KDF cost it is
// re-encrypted at CurrentKDFLogN and the upgraded blob replaces epk.
func (m *Manager) Unlock(pass string) (upgraded bool, err error) {
	var cb func()
	defer func() {
		if cb != nil {
			cb()
		}
	}()
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Locked && m.state != Unlocked {
		return false, errs.New(errs.NoPrivateKey, nil, "identity: no encrypted key to unlock")
	}
	sk, logN, err := decryptEnvelope(m.epk, pass)
	if err != nil {
		return false, errs.New(errs.General, err, "identity: unlock")
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return false, errs.New(errs.General, err, "identity: derive pubkey on unlock")
	}

	m.sk = sk
	m.pubkey = pk
	m.state = Unlocked

	if logN < CurrentKDFLogN {
		newEPK, encErr := nip49.Encrypt(sk, pass, CurrentKDFLogN, 0)
		if encErr == nil {
			m.epk = newEPK
			m.logN = CurrentKDFLogN
			upgraded = true
		}
	} else {
		m.logN = logN
	}

	cb = m.onKeyChange
	return upgraded, nil
}

// ChangePassphrase decrypts under old, re-encrypts under new at logN,
// and persists the result as the active epk.
func (m *Manager) ChangePassphrase(old, newPass string, logN uint8) error {
	var cb func()
	defer func() {
		if cb != nil {
			cb()
		}
	}()
	m.mu.Lock()
	defer m.mu.Unlock()

	sk, _, err := decryptEnvelope(m.epk, old)
	if err != nil {
		return errs.New(errs.General, err, "identity: change_passphrase decrypt")
	}
	epk, err := nip49.Encrypt(sk, newPass, logN, 0)
	if err != nil {
		return errs.New(errs.General, err, "identity: change_passphrase encrypt")
	}
	m.epk = epk
	m.sk = sk
	m.logN = logN
	m.state = Unlocked
	cb = m.onKeyChange
	return nil
}

// EncryptedPrivateKey returns the stored ncryptsec blob, valid in
// Locked or Unlocked state.
func (m *Manager) EncryptedPrivateKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epk
}

func decryptEnvelope(epk, pass string) (sk string, logN uint8, err error) {
	if epk == "" {
		return "", 0, errs.New(errs.NoPrivateKey, nil, "no encrypted key set")
	}
	logN, err = ncryptsecLogN(epk)
	if err != nil {
		return "", 0, err
	}
	sk, err = nip49.Decrypt(epk, pass)
	if err != nil {
		return "", 0, err
	}
	return sk, logN, nil
}

// ncryptsecLogN reads the scrypt cost byte directly out of an
// ncryptsec bech32 envelope, since nip49.Decrypt only returns the
// plaintext key. Per NIP-49 the decoded payload is
// version(1) || log_n(1) || salt(16) || nonce(24) || ac(1) || key(32),
// so log_n is the second payload byte.
func ncryptsecLogN(epk string) (uint8, error) {
	hrp, data, err := bech32.DecodeNoLimit(epk)
	if err != nil {
		return 0, errs.New(errs.Serialization, err, "identity: decode ncryptsec")
	}
	if hrp != "ncryptsec" {
		return 0, errs.New(errs.Serialization, nil, "identity: %q is not an ncryptsec envelope", hrp)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return 0, errs.New(errs.Serialization, err, "identity: decode ncryptsec payload")
	}
	if len(payload) < 2 {
		return 0, errs.New(errs.Serialization, nil, "identity: ncryptsec payload too short")
	}
	return payload[1], nil
}

// requireUnlocked returns the current secret key or NoPrivateKey.
func (m *Manager) requireUnlocked() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Unlocked || m.sk == "" {
		return "", errs.New(errs.NoPrivateKey, nil, "identity: not unlocked")
	}
	return m.sk, nil
}

// SignEvent signs pre in place, computing its canonical id.
func (m *Manager) SignEvent(pre *nostr.Event) error {
	sk, err := m.requireUnlocked()
	if err != nil {
		return err
	}
	if err := pre.Sign(sk); err != nil {
		return errs.New(errs.General, err, "identity: sign_event")
	}
	return nil
}

// ExportPrivateKeyHex returns the raw hex secret key. Requires Unlocked.
func (m *Manager) ExportPrivateKeyHex() (string, error) {
	return m.requireUnlocked()
}

// ExportPrivateKeyBech32 returns the nsec encoding of the secret key.
func (m *Manager) ExportPrivateKeyBech32() (string, error) {
	sk, err := m.requireUnlocked()
	if err != nil {
		return "", err
	}
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		return "", errs.New(errs.Serialization, err, "identity: encode nsec")
	}
	return nsec, nil
}

// Algo selects the encryption scheme encrypt/decrypt use.
type Algo int

const (
	NIP04 Algo = iota
	NIP44
)

// Encrypt encrypts plaintext to peer under the given algorithm.
func (m *Manager) Encrypt(peer, plaintext string, algo Algo) (string, error) {
	sk, err := m.requireUnlocked()
	if err != nil {
		return "", err
	}
	switch algo {
	case NIP04:
		shared, err := nip04.ComputeSharedSecret(peer, sk)
		if err != nil {
			return "", errs.New(errs.General, err, "identity: nip04 shared secret")
		}
		ct, err := nip04.Encrypt(plaintext, shared)
		if err != nil {
			return "", errs.New(errs.General, err, "identity: nip04 encrypt")
		}
		return ct, nil
	default:
		key, err := nip44.GenerateConversationKey(peer, sk)
		if err != nil {
			return "", errs.New(errs.General, err, "identity: nip44 conversation key")
		}
		ct, err := nip44.Encrypt(plaintext, key)
		if err != nil {
			return "", errs.New(errs.General, err, "identity: nip44 encrypt")
		}
		return ct, nil
	}
}

// Decrypt decrypts ciphertext from peer, auto-detecting NIP-04's
// legacy "<payload>?iv=<iv>" shape versus NIP-44's base64 envelope —
// the same heuristic go-nostr's own keyer implementations use.
func (m *Manager) Decrypt(peer, ciphertext string) (string, error) {
	sk, err := m.requireUnlocked()
	if err != nil {
		return "", err
	}
	if strings.Contains(ciphertext, "?iv=") {
		shared, err := nip04.ComputeSharedSecret(peer, sk)
		if err != nil {
			return "", errs.New(errs.General, err, "identity: nip04 shared secret")
		}
		pt, err := nip04.Decrypt(ciphertext, shared)
		if err != nil {
			return "", errs.New(errs.General, err, "identity: nip04 decrypt")
		}
		return pt, nil
	}
	key, err := nip44.GenerateConversationKey(peer, sk)
	if err != nil {
		return "", errs.New(errs.General, err, "identity: nip44 conversation key")
	}
	pt, err := nip44.Decrypt(ciphertext, key)
	if err != nil {
		return "", errs.New(errs.General, err, "identity: nip44 decrypt")
	}
	return pt, nil
}

// UnwrapGiftWrap unwraps a kind-1059 gift wrap down to its inner
// rumor: outer (nip44) -> seal (kind 13) -> rumor. Satisfies
// store.GiftUnwrapper.
func (m *Manager) UnwrapGiftWrap(outer *nostr.Event) (*nostr.Event, error) {
	if !m.Ready() {
		return nil, errs.New(errs.NoPrivateKey, nil, "identity: locked, cannot unwrap gift wrap")
	}
	rumor, err := nip59.GiftUnwrap(*outer, func(otherPubkey, ciphertext string) (string, error) {
		return m.Decrypt(otherPubkey, ciphertext)
	})
	if err != nil {
		return nil, errs.New(errs.General, err, "identity: unwrap_giftwrap")
	}
	return &rumor, nil
}

// SignEventWithPoW mines a "nonce" tag until the event id has at
// least zeroBits leading zero bits, then signs. progress, if non-nil,
// is called every 4096 attempts and once more on success, each time
// with the number of attempts so far.
func (m *Manager) SignEventWithPoW(ctx context.Context, pre *nostr.Event, zeroBits int, progress func(attempts int)) error {
	if zeroBits <= 0 {
		return m.SignEvent(pre)
	}
	sk, err := m.requireUnlocked()
	if err != nil {
		return err
	}
	return mineAndSign(ctx, pre, sk, zeroBits, progress)
}
