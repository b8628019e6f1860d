package store

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/pinpox/gossip/internal/errs"
)

// Person is the per-pubkey metadata record (spec.md section 3).
// Metadata is kept as a raw JSON blob so internal/person can lazily
// deserialize and memoize the profile fields it actually needs,
// rather than this package committing to a fixed profile schema.
type Person struct {
	Pubkey             string `json:"pubkey"`
	Petname            string `json:"petname,omitempty"`
	MetadataJSON       string `json:"metadata_json,omitempty"`
	MetadataCreatedAt  int64  `json:"metadata_created_at,omitempty"`
	RelayListCreatedAt int64  `json:"relay_list_created_at,omitempty"`
	DMRelayListAt      int64  `json:"dm_relay_list_created_at,omitempty"`
	LastSought         int64  `json:"last_sought,omitempty"`
	NIP05              string `json:"nip05,omitempty"`
	NIP05Valid         bool   `json:"nip05_valid,omitempty"`
	NIP05LastCheck     int64  `json:"nip05_last_check,omitempty"`
	FirstEncountered   int64  `json:"first_encountered"`
}

func personKey(pubkey string) []byte { return withPrefix(prefixPerson, []byte(pubkey)) }

// PutPerson inserts or overwrites a person record.
func (s *Store) PutPerson(p *Person) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling person")
	}
	return s.Update(func(txn *badger.Txn) error { return txn.Set(personKey(p.Pubkey), payload) })
}

// GetPerson looks up a person record, returning nil if unknown.
func (s *Store) GetPerson(pubkey string) (p *Person, err error) {
	err = s.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(personKey(pubkey))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			p = new(Person)
			return json.Unmarshal(val, p)
		})
	})
	return
}

// ListMembership is the value stored for one pubkey's membership in one
// list (well-known slots 0=muted, 1=followed, 2..255 user-defined): it
// records only whether that membership is private.
type ListMembership struct {
	Private bool `json:"private"`
}

// PersonListMeta is the per-list metadata (spec.md section 3).
type PersonListMeta struct {
	Slot          int    `json:"slot"`
	DTag          string `json:"d_tag"`
	Title         string `json:"title"`
	LastEditTime  int64  `json:"last_edit_time"`
	EventCreated  int64  `json:"event_created_at"`
	Favorite      bool   `json:"favorite"`
	Order         int    `json:"order"`
	Private       bool   `json:"private"`
}

func personListMetaKey(slot int) []byte {
	return withPrefix(prefixListMeta, beU32(uint32(slot)))
}

func personListMemberKey(slot int, pubkey string) []byte {
	buf := append(beU32(uint32(slot)), []byte(pubkey)...)
	return withPrefix(prefixPersonList, buf)
}

func personListMemberPrefix(slot int) []byte {
	return withPrefix(prefixPersonList, beU32(uint32(slot)))
}

// PutListMeta stores a person list's metadata record.
func (s *Store) PutListMeta(meta *PersonListMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling list metadata")
	}
	return s.Update(func(txn *badger.Txn) error { return txn.Set(personListMetaKey(meta.Slot), payload) })
}

// GetListMeta looks up a list's metadata record.
func (s *Store) GetListMeta(slot int) (meta *PersonListMeta, err error) {
	err = s.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(personListMetaKey(slot))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			meta = new(PersonListMeta)
			return json.Unmarshal(val, meta)
		})
	})
	return
}

// AddToList marks pubkey as a member of slot, with the given privacy.
func (s *Store) AddToList(slot int, pubkey string, private bool) error {
	payload, err := json.Marshal(ListMembership{Private: private})
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling list membership")
	}
	key := personListMemberKey(slot, pubkey)
	return s.Update(func(txn *badger.Txn) error { return txn.Set(key, payload) })
}

// RemoveFromList removes pubkey from slot's membership.
func (s *Store) RemoveFromList(slot int, pubkey string) error {
	key := personListMemberKey(slot, pubkey)
	return s.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
}

// IsListMember reports whether pubkey belongs to slot.
func (s *Store) IsListMember(slot int, pubkey string) (member bool, err error) {
	err = s.View(func(txn *badger.Txn) error {
		_, getErr := txn.Get(personListMemberKey(slot, pubkey))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		member = true
		return nil
	})
	return
}

// ListMembers returns every pubkey currently in slot.
func (s *Store) ListMembers(slot int) (pubkeys []string, err error) {
	entries, err := s.ListMembersDetailed(slot)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		pubkeys = append(pubkeys, e.Pubkey)
	}
	return pubkeys, nil
}

// ListEntry pairs a list member's pubkey with its stored privacy flag.
type ListEntry struct {
	Pubkey  string
	Private bool
}

// ListMembersDetailed returns every member of slot along with whether
// AddToList recorded it as private.
func (s *Store) ListMembersDetailed(slot int) (entries []ListEntry, err error) {
	prefix := personListMemberPrefix(slot)
	err = s.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			pubkey := string(item.Key()[len(prefix):])
			var m ListMembership
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
				return err
			}
			entries = append(entries, ListEntry{Pubkey: pubkey, Private: m.Private})
		}
		return nil
	})
	return
}

// MutedSlot and FollowedSlot are the well-known list slots spec.md's
// glossary reserves; slots 2-255 are user-defined.
const (
	MutedSlot    = 0
	FollowedSlot = 1
)
