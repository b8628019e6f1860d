package store

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/pinpox/gossip/internal/errs"
)

// TriState mirrors the source's Option<bool> relay-policy fields: a
// user decision that defaults to undecided rather than false.
type TriState int

const (
	TriNone TriState = iota
	TriDeny
	TriAllow
)

// Usage bits a relay can be assigned, spec.md section 3.
const (
	UsageRead = 1 << iota
	UsageWrite
	UsageInbox
	UsageOutbox
	UsageDiscover
	UsageSpamsafe
	UsageDM
)

// Relay is the per-relay metadata record keyed by canonical URL.
type Relay struct {
	URL               string `json:"url"`
	SuccessCount      int64  `json:"success_count"`
	FailureCount      int64  `json:"failure_count"`
	LastConnectedAt   int64  `json:"last_connected_at"`
	LastGeneralEoseAt int64  `json:"last_general_eose_at"`
	Rank              int    `json:"rank"`
	UsageBits         int    `json:"usage_bits"`
	NIP11             string `json:"nip11,omitempty"`
	LastNIP11Attempt  int64  `json:"last_nip11_attempt"`
	AllowConnect      TriState `json:"allow_connect"`
	AllowAuth         TriState `json:"allow_auth"`
	AvoidUntil        int64  `json:"avoid_until,omitempty"`
}

// SuccessRate is success_count / (success_count+failure_count), 1.0
// when the relay has never been attempted (optimistic default).
func (r *Relay) SuccessRate() float64 {
	total := r.SuccessCount + r.FailureCount
	if total == 0 {
		return 1.0
	}
	return float64(r.SuccessCount) / float64(total)
}

func relayKey(url string) []byte { return withPrefix(prefixRelay, []byte(url)) }

// DefaultRelay returns a freshly-seen relay record with the default
// rank (3) spec.md section 3 assigns to unranked relays.
func DefaultRelay(url string) *Relay {
	return &Relay{URL: url, Rank: 3}
}

// PutRelay inserts or overwrites a relay record.
func (s *Store) PutRelay(r *Relay) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling relay")
	}
	return s.Update(func(txn *badger.Txn) error { return txn.Set(relayKey(r.URL), payload) })
}

// GetRelay looks up a relay by canonical URL, returning nil if unknown.
func (s *Store) GetRelay(url string) (r *Relay, err error) {
	err = s.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(relayKey(url))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			r = new(Relay)
			return json.Unmarshal(val, r)
		})
	})
	return
}

// ListRelays returns every known relay record.
func (s *Store) ListRelays() (relays []*Relay, err error) {
	err = s.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixRelay})
		defer it.Close()
		for it.Seek(prefixRelay); it.ValidForPrefix(prefixRelay); it.Next() {
			item := it.Item()
			var r Relay
			if valErr := item.Value(func(val []byte) error { return json.Unmarshal(val, &r) }); valErr != nil {
				continue
			}
			relays = append(relays, &r)
		}
		return nil
	})
	return
}
