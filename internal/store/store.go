// Package store is the embedded event database (spec component C2): a
// single ACID key/value environment with secondary indexes supporting
// feed, author, kind, tag, and time-range queries. Badger stands in
// for the LMDB environment spec.md describes — it gives the same
// MVCC/ACID guarantees and is the embedded engine the retrieval pack
// itself reaches for (see DESIGN.md).
package store

import (
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/pinpox/gossip/internal/errs"
	"github.com/pinpox/gossip/internal/logging"
)

// GiftUnwrapper is implemented by internal/identity.Manager. The store
// depends on this narrow interface instead of the identity package
// directly so the two packages don't import each other.
type GiftUnwrapper interface {
	UnwrapGiftWrap(outer *Event) (rumor *Event, err error)
	Ready() bool
}

// Store is the event store handle. All reads go through View, all
// writes through Update; both are thin wrappers over badger's own
// transaction closures, which already give the "guard that
// commits/aborts on drop" shape spec.md section 5 asks for.
type Store struct {
	db        *badger.DB
	dataDir   string
	unwrap    GiftUnwrapper
	ownPubkey string
}

// Open creates (if needed) and opens the badger environment at dir.
func Open(dir string) (s *Store, err error) {
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.New(errs.Storage, err, "creating store directory")
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.Compression = options.None
	// write-map style settings: async sync keeps writes off the fsync
	// hot path, matching spec.md's "async metadata sync" requirement.
	opts.SyncWrites = false
	var db *badger.DB
	if db, err = badger.Open(opts); err != nil {
		return nil, errs.New(errs.Storage, err, "opening badger environment")
	}
	s = &Store{db: db, dataDir: dir}
	return
}

// SetGiftUnwrapper wires the identity manager in after construction,
// breaking the store/identity import cycle. The gift-wrap rewrite in
// PutEvent is a no-op (events land in the unindexed_giftwraps table)
// until this is called with a ready unwrapper.
func (s *Store) SetGiftUnwrapper(u GiftUnwrapper) { s.unwrap = u }

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.New(errs.Storage, err, "closing store")
	}
	return nil
}

// View runs fn against a read-only snapshot.
func (s *Store) View(fn func(txn *badger.Txn) error) error {
	if err := s.db.View(fn); err != nil {
		logging.Debugf("store: view txn failed: %v", err)
		return err
	}
	return nil
}

// Update runs fn inside a read-write transaction; fn's return value
// determines commit (nil) or rollback (non-nil).
func (s *Store) Update(fn func(txn *badger.Txn) error) error {
	if err := s.db.Update(fn); err != nil {
		return err
	}
	return nil
}
