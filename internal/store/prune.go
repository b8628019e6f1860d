package store

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/pinpox/gossip/internal/errs"
)

// PruneOldEvents deletes every event older than before, except ids
// present in the current bookmark set, along with their seen_on,
// viewed, hashtag, akci/kci/tci, and relationships_by_id entries.
// Unlike DeleteEvent (a NIP-09 deletion, which leaves relationship
// edges as sticky evidence), pruning is storage reclaim: edges
// pointing at a pruned event are removed too.
func (s *Store) PruneOldEvents(before int64) (removed int, err error) {
	kept, err := s.bookmarkedIDSet()
	if err != nil {
		return 0, err
	}

	var toRemove []*Event
	err = s.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixEvent})
		defer it.Close()
		for it.Seek(prefixEvent); it.ValidForPrefix(prefixEvent); it.Next() {
			item := it.Item()
			var ev Event
			if valErr := item.Value(func(val []byte) error { return json.Unmarshal(val, &ev) }); valErr != nil {
				continue
			}
			if int64(ev.CreatedAt) >= before || kept[ev.ID] {
				continue
			}
			cp := ev
			toRemove = append(toRemove, &cp)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	err = s.Update(func(txn *badger.Txn) error {
		for _, ev := range toRemove {
			if delErr := s.deleteEventTxn(txn, ev); delErr != nil {
				return delErr
			}
			if delErr := s.removeIncomingRelationshipsTxn(txn, ev.ID); delErr != nil {
				return delErr
			}
		}
		return nil
	})
	if err != nil {
		return 0, errs.New(errs.Storage, err, "pruning events before %d", before)
	}
	return len(toRemove), nil
}

// removeIncomingRelationshipsTxn removes every relationships_by_id edge
// that names targetID, i.e. every edge the pruned event was the target
// of. Edges where the pruned event was the source remain, since the
// source event no longer exists to be re-derived from; they age out
// naturally as their own targets are pruned.
func (s *Store) removeIncomingRelationshipsTxn(txn *badger.Txn, targetID string) error {
	prefix := withPrefix(prefixRelByID, []byte(targetID+"\x00"))
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := txn.Delete(k); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
	}
	return nil
}
