package store

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/pinpox/gossip/internal/errs"
)

// PersonRelay is the declared or observed association between a
// pubkey and a relay (spec.md section 3).
type PersonRelay struct {
	Pubkey        string `json:"pubkey"`
	URL           string `json:"url"`
	Read          bool   `json:"read"`
	Write         bool   `json:"write"`
	DM            bool   `json:"dm"`
	LastFetched   int64  `json:"last_fetched"`
	LastSuggested int64  `json:"last_suggested"`
}

func personRelayKey(pubkey, url string) []byte {
	return withPrefix(prefixPersonRelay, []byte(pubkey+"\x00"+url))
}

func personRelayPrefix(pubkey string) []byte {
	return withPrefix(prefixPersonRelay, []byte(pubkey+"\x00"))
}

// PutPersonRelay inserts or overwrites a (pubkey,url) association.
func (s *Store) PutPersonRelay(pr *PersonRelay) error {
	payload, err := json.Marshal(pr)
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling person relay")
	}
	key := personRelayKey(pr.Pubkey, pr.URL)
	return s.Update(func(txn *badger.Txn) error { return txn.Set(key, payload) })
}

// PersonRelays returns every relay association declared or observed
// for pubkey.
func (s *Store) PersonRelays(pubkey string) (rows []*PersonRelay, err error) {
	prefix := personRelayPrefix(pubkey)
	err = s.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var pr PersonRelay
			if valErr := item.Value(func(val []byte) error { return json.Unmarshal(val, &pr) }); valErr != nil {
				continue
			}
			rows = append(rows, &pr)
		}
		return nil
	})
	return
}
