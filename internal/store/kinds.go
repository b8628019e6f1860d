package store

// Event kinds referenced by name throughout the store and post
// builder, per the NIPs spec.md assumes as given (section 1,
// Non-goals: the wire protocol itself is out of scope, but the kind
// numbers it assigns are not).
const (
	KindTextNote     = 1
	KindContacts     = 3
	KindDelete       = 5
	KindReaction     = 7
	KindChannelMsg   = 42
	KindRelayList    = 10002
	KindDMRelayList  = 10050
	KindDMRumor      = 14
	KindSeal         = 13
	KindGiftWrap     = 1059
	KindZapReceipt   = 9735
)
