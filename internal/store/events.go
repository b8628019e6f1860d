package store

import (
	"encoding/json"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/errs"
)

// indexedTags is the fixed allowlist from spec.md section 4.1: indexing
// every tag would make index growth unbounded on high-fanout events, so
// only these are ever written to the tci table.
var indexedTags = map[string]bool{
	"a": true, "d": true, "p": true, "delegation": true,
}

// SetOwnPubkey records the local identity's pubkey (hex, lowercase).
// It gates "p" tag indexing per spec.md section 4.1: a "p" tag is
// indexed only when it names the owner, or when the event itself is a
// kind-3 contact list (whose "p" tags are the whole point of the
// index).
func (s *Store) SetOwnPubkey(pubkeyHex string) { s.ownPubkey = strings.ToLower(pubkeyHex) }

func eventKey(id string) []byte { return withPrefix(prefixEvent, []byte(id)) }

// PutEvent inserts ev and all of its derived index entries atomically.
// It fails with errs.Duplicate if the id is already stored; callers
// that don't care may ignore that specific error (see PutEventIfNew).
func (s *Store) PutEvent(ev *Event) error {
	return s.Update(func(txn *badger.Txn) error {
		return s.putEventTxn(txn, ev)
	})
}

// PutEventIfNew is PutEvent with Duplicate treated as a successful
// no-op, matching the "no-op variant also offered" line in spec.md.
func (s *Store) PutEventIfNew(ev *Event) error {
	err := s.PutEvent(ev)
	if errs.Is(err, errs.Duplicate) {
		return nil
	}
	return err
}

func (s *Store) putEventTxn(txn *badger.Txn, ev *Event) error {
	id := ev.ID
	if _, err := txn.Get(eventKey(id)); err == nil {
		return errs.New(errs.Duplicate, nil, "event %s already stored", id)
	} else if err != badger.ErrKeyNotFound {
		return errs.New(errs.Storage, err, "checking for existing event")
	}

	// Gift-wrap rewrite (spec.md section 4.1): the outer id/kind own the
	// primary row and kci entry; the inner rumor's author/created_at
	// drive akci/tci so feed ordering reflects the real author.
	indexAuthor := ev.PubKey
	indexCreatedAt := int64(ev.CreatedAt)
	indexTags := ev.Tags
	if ev.Kind == KindGiftWrap {
		if s.unwrap == nil || !s.unwrap.Ready() {
			if err := txn.Set(withPrefix(prefixUnindexedGW, []byte(id)), nil); err != nil {
				return errs.New(errs.Storage, err, "recording unindexed gift wrap")
			}
		} else if rumor, err := s.unwrap.UnwrapGiftWrap(ev); err == nil && rumor != nil {
			indexAuthor = rumor.PubKey
			indexCreatedAt = int64(rumor.CreatedAt)
			indexTags = rumor.Tags
		}
	}

	idBytes, err := hexToBytes32(id)
	if err != nil {
		return errs.New(errs.Serialization, err, "decoding event id")
	}
	authorBytes, err := hexToBytes32(indexAuthor)
	if err != nil {
		return errs.New(errs.Serialization, err, "decoding author pubkey")
	}

	if err := txn.Set(akciKey(authorBytes, uint32(ev.Kind), indexCreatedAt, idBytes), nil); err != nil {
		return errs.New(errs.Storage, err, "writing akci index")
	}
	if err := txn.Set(kciKey(uint32(ev.Kind), int64(ev.CreatedAt), idBytes), nil); err != nil {
		return errs.New(errs.Storage, err, "writing kci index")
	}
	if err := s.writeTagIndexesTxn(txn, id, idBytes, ev.Kind, indexTags, indexCreatedAt); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling event")
	}
	if err := txn.Set(eventKey(id), payload); err != nil {
		return errs.New(errs.Storage, err, "writing event row")
	}

	return s.extractRelationshipsTxn(txn, ev)
}

// writeTagIndexesTxn writes the hashtag and tci entries derived from
// tags, attributed to indexCreatedAt (the rumor's created_at for a
// gift wrap, the event's own otherwise).
func (s *Store) writeTagIndexesTxn(txn *badger.Txn, id string, idBytes []byte, kind int, tags nostr.Tags, indexCreatedAt int64) error {
	for _, t := range tags {
		if len(t) < 2 {
			continue
		}
		name, value := t[0], t[1]
		if name == "t" {
			if err := txn.Set(withPrefix(prefixHashtag, []byte(value+"\x00"+id)), nil); err != nil {
				return errs.New(errs.Storage, err, "writing hashtag index")
			}
			continue
		}
		if !indexedTags[name] {
			continue
		}
		if name == "p" && value != s.ownPubkey && kind != KindContacts {
			continue
		}
		if err := txn.Set(tciKey(name, value, indexCreatedAt, idBytes), nil); err != nil {
			return errs.New(errs.Storage, err, "writing tci index")
		}
	}
	return nil
}

// ReindexUnindexedGiftWraps re-derives the akci/tci index entries for
// every gift wrap that arrived before a ready GiftUnwrapper was wired
// in (spec.md section 4.1's "ugw:" holding table), now that one is.
// Call it after SetGiftUnwrapper once the unwrapper reports Ready —
// identity.Manager's onKeyChange hook is the intended trigger.
func (s *Store) ReindexUnindexedGiftWraps() (reindexed int, err error) {
	if s.unwrap == nil || !s.unwrap.Ready() {
		return 0, nil
	}

	var ids []string
	err = s.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefixUnindexedGW})
		defer it.Close()
		for it.Seek(prefixUnindexedGW); it.ValidForPrefix(prefixUnindexedGW); it.Next() {
			ids = append(ids, string(it.Item().KeyCopy(nil)[len(prefixUnindexedGW):]))
		}
		return nil
	})
	if err != nil {
		return 0, errs.New(errs.Storage, err, "scanning unindexed gift wraps")
	}

	for _, id := range ids {
		if err := s.Update(func(txn *badger.Txn) error {
			return s.reindexGiftWrapTxn(txn, id)
		}); err != nil {
			return reindexed, err
		}
		reindexed++
	}
	return reindexed, nil
}

// reindexGiftWrapTxn unwraps the stored gift wrap id, moves its akci
// entry from the outer envelope's author/timestamp to the rumor's, and
// indexes the rumor's own tags, then clears its "ugw:" marker.
func (s *Store) reindexGiftWrapTxn(txn *badger.Txn, id string) error {
	item, getErr := txn.Get(eventKey(id))
	if getErr == badger.ErrKeyNotFound {
		return txn.Delete(withPrefix(prefixUnindexedGW, []byte(id)))
	}
	if getErr != nil {
		return errs.New(errs.Storage, getErr, "fetching unindexed gift wrap")
	}
	var ev Event
	if valErr := item.Value(func(val []byte) error { return json.Unmarshal(val, &ev) }); valErr != nil {
		return errs.New(errs.Serialization, valErr, "unmarshaling unindexed gift wrap")
	}

	rumor, err := s.unwrap.UnwrapGiftWrap(&ev)
	if err != nil || rumor == nil {
		return nil // still can't unwrap; leave it queued
	}

	idBytes, err := hexToBytes32(id)
	if err != nil {
		return errs.New(errs.Serialization, err, "decoding event id")
	}
	oldAuthorBytes, err := hexToBytes32(ev.PubKey)
	if err != nil {
		return errs.New(errs.Serialization, err, "decoding outer pubkey")
	}
	newAuthorBytes, err := hexToBytes32(rumor.PubKey)
	if err != nil {
		return errs.New(errs.Serialization, err, "decoding rumor pubkey")
	}

	if delErr := txn.Delete(akciKey(oldAuthorBytes, uint32(ev.Kind), int64(ev.CreatedAt), idBytes)); delErr != nil && delErr != badger.ErrKeyNotFound {
		return errs.New(errs.Storage, delErr, "removing stale akci entry")
	}
	if setErr := txn.Set(akciKey(newAuthorBytes, uint32(ev.Kind), int64(rumor.CreatedAt), idBytes), nil); setErr != nil {
		return errs.New(errs.Storage, setErr, "writing reindexed akci entry")
	}
	if err := s.writeTagIndexesTxn(txn, id, idBytes, ev.Kind, rumor.Tags, int64(rumor.CreatedAt)); err != nil {
		return err
	}

	return txn.Delete(withPrefix(prefixUnindexedGW, []byte(id)))
}

// GetEvent looks up an event by id.
func (s *Store) GetEvent(id string) (ev *Event, err error) {
	err = s.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(eventKey(id))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return errs.New(errs.Storage, getErr, "fetching event")
		}
		return item.Value(func(val []byte) error {
			ev = new(Event)
			return json.Unmarshal(val, ev)
		})
	})
	return
}

// HasEvent is a cheap existence check, avoiding the deserialization
// GetEvent pays for.
func (s *Store) HasEvent(id string) (has bool, err error) {
	err = s.View(func(txn *badger.Txn) error {
		_, getErr := txn.Get(eventKey(id))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		has = true
		return nil
	})
	return
}

// DeleteEvent removes the primary row and all index entries pointing
// at id. Relationship edges that reference id are left untouched:
// spec.md section 3 calls deletions "sticky evidence".
func (s *Store) DeleteEvent(id string) error {
	ev, err := s.GetEvent(id)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}
	return s.Update(func(txn *badger.Txn) error {
		return s.deleteEventTxn(txn, ev)
	})
}

func (s *Store) deleteEventTxn(txn *badger.Txn, ev *Event) error {
	idBytes, err := hexToBytes32(ev.ID)
	if err != nil {
		return errs.New(errs.Serialization, err, "decoding event id")
	}
	authorBytes, err := hexToBytes32(ev.PubKey)
	if err != nil {
		return errs.New(errs.Serialization, err, "decoding author pubkey")
	}
	if err := txn.Delete(eventKey(ev.ID)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if err := txn.Delete(akciKey(authorBytes, uint32(ev.Kind), int64(ev.CreatedAt), idBytes)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	if err := txn.Delete(kciKey(uint32(ev.Kind), int64(ev.CreatedAt), idBytes)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	for _, t := range ev.Tags {
		if len(t) < 2 {
			continue
		}
		name, value := t[0], t[1]
		if name == "t" {
			_ = txn.Delete(withPrefix(prefixHashtag, []byte(value+"\x00"+ev.ID)))
			continue
		}
		if !indexedTags[name] {
			continue
		}
		_ = txn.Delete(tciKey(name, value, int64(ev.CreatedAt), idBytes))
	}
	return s.removeSeenAndViewedTxn(txn, ev.ID)
}

func (s *Store) removeSeenAndViewedTxn(txn *badger.Txn, id string) error {
	prefix := withPrefix(prefixSeenOnRelay, []byte(id+"\x00"))
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	var toDelete [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		k := it.Item().KeyCopy(nil)
		toDelete = append(toDelete, k)
	}
	for _, k := range toDelete {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	if err := txn.Delete(withPrefix(prefixViewed, []byte(id))); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	return nil
}

// MarkSeenOnRelay records that id was observed coming from url at when
// (unix seconds).
func (s *Store) MarkSeenOnRelay(id, url string, when int64) error {
	key := withPrefix(prefixSeenOnRelay, []byte(id+"\x00"+url))
	return s.Update(func(txn *badger.Txn) error {
		return txn.Set(key, beU64(uint64(when)))
	})
}

// SeenOnRelay is one observation row: the event was first seen on url
// at When.
type SeenOnRelay struct {
	URL  string
	When int64
}

// GetSeenOnRelay returns every relay id has been observed on.
func (s *Store) GetSeenOnRelay(id string) (seen []SeenOnRelay, err error) {
	prefix := withPrefix(prefixSeenOnRelay, []byte(id+"\x00"))
	err = s.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.Key()
			url := string(k[len(prefix):])
			var when int64
			if err := item.Value(func(val []byte) error {
				if len(val) == 8 {
					when = int64(beU64ToUint64(val))
				}
				return nil
			}); err != nil {
				return err
			}
			seen = append(seen, SeenOnRelay{URL: url, When: when})
		}
		return nil
	})
	return
}

// MarkViewed records that the local user has seen id in their feed.
func (s *Store) MarkViewed(id string) error {
	return s.Update(func(txn *badger.Txn) error {
		return txn.Set(withPrefix(prefixViewed, []byte(id)), nil)
	})
}

// IsViewed reports whether MarkViewed has been called for id.
func (s *Store) IsViewed(id string) (viewed bool, err error) {
	err = s.View(func(txn *badger.Txn) error {
		_, getErr := txn.Get(withPrefix(prefixViewed, []byte(id)))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		viewed = true
		return nil
	})
	return
}

// ReplaceableEvent returns the newest stored event for (kind, author,
// dTag), implementing NIP-16/33 replacement semantics by scanning the
// "d" tci index and keeping the first (i.e. newest, by construction)
// hit whose kind and author also match.
func (s *Store) ReplaceableEvent(kind int, author, dTag string) (*Event, error) {
	prefix := tciPrefix("d", dTag)
	var found *Event
	err := s.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			idBytes := idFromIndexKey(it.Item().Key())
			id := bytesToHex(idBytes)
			item, getErr := txn.Get(eventKey(id))
			if getErr != nil {
				continue
			}
			var ev Event
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &ev) }); err != nil {
				continue
			}
			if ev.Kind != kind || !strings.EqualFold(ev.PubKey, author) {
				continue
			}
			found = &ev
			return nil
		}
		return nil
	})
	return found, err
}
