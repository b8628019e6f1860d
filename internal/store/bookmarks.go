package store

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/pinpox/gossip/internal/errs"
)

var bookmarkListKey = withPrefix(prefixListMeta, []byte("bookmarks"))

// BookmarkEntry is one row of the ordered BookmarkList spec.md section 3
// describes: a reference to an event, and whether it is private (stored
// in the encrypted content of the bookmark event) or public (a tag).
type BookmarkEntry struct {
	EventID string `json:"event_id"`
	Private bool   `json:"private"`
}

// Bookmarks returns the current bookmark list in order.
func (s *Store) Bookmarks() (entries []BookmarkEntry, err error) {
	err = s.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(bookmarkListKey)
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &entries) })
	})
	return
}

// SetBookmarks replaces the whole bookmark list.
func (s *Store) SetBookmarks(entries []BookmarkEntry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling bookmark list")
	}
	return s.Update(func(txn *badger.Txn) error { return txn.Set(bookmarkListKey, payload) })
}

func (s *Store) bookmarkedIDSet() (map[string]bool, error) {
	entries, err := s.Bookmarks()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[e.EventID] = true
	}
	return set, nil
}
