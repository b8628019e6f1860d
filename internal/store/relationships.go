package store

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/pinpox/gossip/internal/errs"
)

// RelationshipKind is the tagged-union edge payload spec.md section 3
// describes. Edges are stored as separate (target,source) rows rather
// than as owning pointers on either event (spec.md section 9), so a
// cycle between two events (e.g. mutual replies) is just two rows, not
// a graph object.
type RelationshipKind struct {
	Type string `json:"type"`

	// Reaction
	ReactorPubkey string `json:"reactor_pubkey,omitempty"`
	Char          string `json:"char,omitempty"`

	// Deletion
	Reason string `json:"reason,omitempty"`

	// ZapReceipt
	PayerPubkey string `json:"payer_pubkey,omitempty"`
	AmountMsats int64  `json:"amount_msats,omitempty"`
}

const (
	RelReply      = "reply"
	RelReaction   = "reaction"
	RelDeletion   = "deletion"
	RelZapReceipt = "zap_receipt"
)

func relByIDKey(targetID, sourceID string) []byte {
	return withPrefix(prefixRelByID, []byte(targetID+"\x00"+sourceID))
}

func relByAddrKey(kind int, author, dTag, sourceID string) []byte {
	buf := make([]byte, 0, 4+len(author)+1+len(dTag)+1+len(sourceID))
	buf = append(buf, beU32(uint32(kind))...)
	buf = append(buf, []byte(author)...)
	buf = append(buf, '\x00')
	buf = append(buf, []byte(dTag)...)
	buf = append(buf, '\x00')
	buf = append(buf, []byte(sourceID)...)
	return withPrefix(prefixRelByAddr, buf)
}

// extractRelationshipsTxn inspects ev for reference tags and
// well-known kinds and writes the edges spec.md section 4.1's table
// enumerates. Writes are idempotent: repeated calls for the same event
// overwrite the same key with the same value.
func (s *Store) extractRelationshipsTxn(txn *badger.Txn, ev *Event) error {
	for _, t := range ev.Tags {
		if len(t) < 2 {
			continue
		}
		switch t[0] {
		case "e":
			if err := s.writeReplyOrReactionEdge(txn, ev, t); err != nil {
				return err
			}
		case "a":
			if err := s.writeAddrEdge(txn, ev, t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) writeReplyOrReactionEdge(txn *badger.Txn, ev *Event, tag Tag) error {
	targetID := tag[1]
	var rel RelationshipKind
	switch ev.Kind {
	case KindReaction:
		char := "+"
		if c := strings.TrimSpace(ev.Content); c != "" {
			char = string([]rune(c)[0])
		}
		rel = RelationshipKind{Type: RelReaction, ReactorPubkey: ev.PubKey, Char: char}
	case KindDelete:
		target, getErr := s.getEventTxn(txn, targetID)
		if getErr == nil && target != nil && target.PubKey != ev.PubKey {
			// Target exists and was authored by someone else: not a
			// valid deletion, per spec.md's authorization rule.
			return nil
		}
		rel = RelationshipKind{Type: RelDeletion, Reason: ev.Content}
	case KindZapReceipt:
		payer, amount := parseZapReceipt(ev)
		rel = RelationshipKind{Type: RelZapReceipt, PayerPubkey: payer, AmountMsats: amount}
	default:
		rel = RelationshipKind{Type: RelReply}
	}
	payload, err := json.Marshal(rel)
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling relationship edge")
	}
	return txn.Set(relByIDKey(targetID, ev.ID), payload)
}

func (s *Store) writeAddrEdge(txn *badger.Txn, ev *Event, tag Tag) error {
	parts := strings.SplitN(tag[1], ":", 3)
	if len(parts) != 3 {
		return nil
	}
	kind, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	author, dTag := parts[1], parts[2]
	rel := RelationshipKind{Type: RelReply}
	payload, err := json.Marshal(rel)
	if err != nil {
		return errs.New(errs.Serialization, err, "marshaling addr edge")
	}
	return txn.Set(relByAddrKey(kind, author, dTag, ev.ID), payload)
}

var bolt11AmountRe = regexp.MustCompile(`lnbc(\d+)([munp]?)`)

// parseZapReceipt pulls the payer pubkey (from the "description" tag's
// embedded zap request, falling back to a "P" tag) and the paid amount
// in millisatoshis out of the receipt's bolt11 tag.
func parseZapReceipt(ev *Event) (payer string, msats int64) {
	var bolt11, pTag string
	for _, t := range ev.Tags {
		if len(t) < 2 {
			continue
		}
		switch t[0] {
		case "P":
			pTag = t[1]
		case "bolt11":
			bolt11 = t[1]
		case "description":
			var req Event
			if json.Unmarshal([]byte(t[1]), &req) == nil {
				payer = req.PubKey
			}
		}
	}
	if payer == "" {
		payer = pTag
	}
	if m := bolt11AmountRe.FindStringSubmatch(bolt11); m != nil {
		amount, _ := strconv.ParseInt(m[1], 10, 64)
		msats = bolt11UnitToMsats(amount, m[2])
	}
	return
}

func bolt11UnitToMsats(amount int64, unit string) int64 {
	switch unit {
	case "m":
		return amount * 100000000 // milli-bitcoin
	case "u":
		return amount * 100000
	case "n":
		return amount * 100
	case "p":
		return amount / 10
	default:
		return amount * 100000000000 // whole bitcoin
	}
}

func (s *Store) getEventTxn(txn *badger.Txn, id string) (*Event, error) {
	item, err := txn.Get(eventKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ev Event
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &ev) }); err != nil {
		return nil, err
	}
	return &ev, nil
}

// RelationshipEdge pairs a source event id with the edge it forms onto
// the queried target.
type RelationshipEdge struct {
	SourceID string
	Kind     RelationshipKind
}

// RelationshipsByID returns every edge pointing at targetID.
func (s *Store) RelationshipsByID(targetID string) (edges []RelationshipEdge, err error) {
	prefix := withPrefix(prefixRelByID, []byte(targetID+"\x00"))
	err = s.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			sourceID := string(item.Key()[len(prefix):])
			var rel RelationshipKind
			if valErr := item.Value(func(val []byte) error { return json.Unmarshal(val, &rel) }); valErr != nil {
				continue
			}
			edges = append(edges, RelationshipEdge{SourceID: sourceID, Kind: rel})
		}
		return nil
	})
	return
}
