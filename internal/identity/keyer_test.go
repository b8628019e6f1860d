package identity

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestAsKeyerSelfEncryptRoundTrip(t *testing.T) {
	m := New(nil)
	if _, err := m.Generate("pass", 10); err != nil {
		t.Fatal(err)
	}
	kr := AsKeyer(m)
	ctx := context.Background()

	pk, err := kr.GetPublicKey(ctx)
	if err != nil || pk != m.Pubkey() {
		t.Fatalf("GetPublicKey: pk=%q err=%v", pk, err)
	}

	ct, err := kr.Encrypt(ctx, "hello self", pk)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := kr.Decrypt(ctx, ct, pk)
	if err != nil || pt != "hello self" {
		t.Fatalf("Decrypt: pt=%q err=%v", pt, err)
	}

	evt := &nostr.Event{Kind: 1, CreatedAt: nostr.Now(), Content: "x"}
	if err := kr.SignEvent(ctx, evt); err != nil {
		t.Fatalf("SignEvent: %v", err)
	}
	if ok, err := evt.CheckSignature(); err != nil || !ok {
		t.Fatalf("want valid signature via keyer adapter, ok=%v err=%v", ok, err)
	}
}
