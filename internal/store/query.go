package store

import (
	"encoding/json"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/pinpox/gossip/internal/errs"
)

// FindByFilter executes f against the best available index, per the
// execution strategy in spec.md section 4.1:
//
//  1. authors ∧ kinds present  -> scan akci per (author,kind) pair
//  2. else kinds present        -> scan kci per kind
//  3. else tags present         -> scan tci per (tagname,tagvalue)
//  4. else only ids             -> point lookups
//  5. otherwise                 -> UnindexedQuery
//
// Results come back in descending created_at order by construction
// (the reverse-timestamp key encoding does the sorting), are filtered
// by since/until and pred, and are truncated at limit.
func (s *Store) FindByFilter(f Filter, pred Predicate) (events []*Event, err error) {
	if pred == nil {
		pred = func(*Event) bool { return true }
	}

	var prefixes [][]byte
	switch {
	case len(f.Authors) > 0 && len(f.Kinds) > 0:
		for _, a := range f.Authors {
			ab, decErr := hexToBytes32(a)
			if decErr != nil {
				continue
			}
			for _, k := range f.Kinds {
				prefixes = append(prefixes, akciPrefix(ab, uint32(k)))
			}
		}
	case len(f.Kinds) > 0:
		for _, k := range f.Kinds {
			prefixes = append(prefixes, kciPrefix(uint32(k)))
		}
	case len(f.Tags) > 0:
		for name, values := range f.Tags {
			for _, v := range values {
				prefixes = append(prefixes, tciPrefix(name, v))
			}
		}
	case len(f.IDs) > 0:
		return s.pointLookup(f.IDs, f.Since, f.Until, pred, f.Limit)
	default:
		return nil, errs.New(errs.UnindexedQuery, nil, "filter cannot be served by any index")
	}

	seen := make(map[string]bool)
	err = s.View(func(txn *badger.Txn) error {
		for _, prefix := range prefixes {
			it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				idBytes := idFromIndexKey(it.Item().Key())
				id := bytesToHex(idBytes)
				if seen[id] {
					continue
				}
				item, getErr := txn.Get(eventKey(id))
				if getErr != nil {
					continue
				}
				var ev Event
				if valErr := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &ev)
				}); valErr != nil {
					continue
				}
				if f.Since != nil && int64(ev.CreatedAt) < *f.Since {
					continue
				}
				if f.Until != nil && int64(ev.CreatedAt) > *f.Until {
					continue
				}
				if !pred(&ev) {
					continue
				}
				seen[id] = true
				cp := ev
				events = append(events, &cp)
				if f.Limit > 0 && len(events) >= f.Limit*len(prefixes) {
					break
				}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	mergeSortDescending(events)
	if f.Limit > 0 && len(events) > f.Limit {
		events = events[:f.Limit]
	}
	return events, nil
}

func (s *Store) pointLookup(ids []string, since, until *int64, pred Predicate, limit int) (events []*Event, err error) {
	err = s.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, getErr := txn.Get(eventKey(id))
			if getErr != nil {
				continue
			}
			var ev Event
			if valErr := item.Value(func(val []byte) error { return json.Unmarshal(val, &ev) }); valErr != nil {
				continue
			}
			if since != nil && int64(ev.CreatedAt) < *since {
				continue
			}
			if until != nil && int64(ev.CreatedAt) > *until {
				continue
			}
			if !pred(&ev) {
				continue
			}
			cp := ev
			events = append(events, &cp)
		}
		return nil
	})
	mergeSortDescending(events)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return
}

// mergeSortDescending sorts by created_at descending; each per-prefix
// scan already arrives sorted, but merging multiple (author,kind)
// prefixes (or multiple tag values) requires a final pass.
func mergeSortDescending(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt > events[j].CreatedAt
	})
}
