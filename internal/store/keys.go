package store

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Badger has no named sub-databases, so the tables spec.md describes
// are realized as byte prefixes inside one keyspace. Every prefix below
// corresponds to one row of the table in spec.md section 4.1.
var (
	prefixEvent        = []byte("ev:")
	prefixAKCI          = []byte("akci:")
	prefixKCI           = []byte("kci:")
	prefixTCI           = []byte("tci:")
	prefixSeenOnRelay   = []byte("seen:")
	prefixViewed        = []byte("viewed:")
	prefixHashtag       = []byte("hashtag:")
	prefixRelByID       = []byte("redge:")
	prefixRelByAddr     = []byte("aedge:")
	prefixPerson        = []byte("person:")
	prefixPersonRelay   = []byte("prel:")
	prefixPersonList    = []byte("plist:")
	prefixListMeta      = []byte("plmeta:")
	prefixRelay         = []byte("relay:")
	prefixUnindexedGW   = []byte("ugw:")
)

// revTime maps a unix timestamp to u64::MAX - t so that lexicographic
// byte order over the encoding matches descending chronological order;
// prefix-range scans then yield newest-first with no secondary sort.
func revTime(t int64) uint64 {
	if t < 0 {
		t = 0
	}
	return math.MaxUint64 - uint64(t)
}

func beU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func beU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// akciPrefix builds the prefix:author‖kind scan prefix, shared by
// akciKey (which appends revtime‖id) and query.go (which scans it).
func akciPrefix(author []byte, kind uint32) []byte {
	buf := make([]byte, 0, len(prefixAKCI)+32+4)
	buf = append(buf, prefixAKCI...)
	buf = append(buf, author...)
	buf = append(buf, beU32(kind)...)
	return buf
}

// akciKey builds the full author‖kind‖revtime‖id index key.
func akciKey(author []byte, kind uint32, createdAt int64, id []byte) []byte {
	buf := akciPrefix(author, kind)
	buf = append(buf, beU64(revTime(createdAt))...)
	buf = append(buf, id...)
	return buf
}

// kciPrefix builds the prefix:kind scan prefix.
func kciPrefix(kind uint32) []byte {
	buf := make([]byte, 0, len(prefixKCI)+4)
	buf = append(buf, prefixKCI...)
	buf = append(buf, beU32(kind)...)
	return buf
}

// kciKey builds the full kind‖revtime‖id index key.
func kciKey(kind uint32, createdAt int64, id []byte) []byte {
	buf := kciPrefix(kind)
	buf = append(buf, beU64(revTime(createdAt))...)
	buf = append(buf, id...)
	return buf
}

// tciPrefix builds the prefix:tagname‖0x22‖tagvalue‖ scan prefix (without
// the trailing revtime/id) used to range over every event tagged with a
// given (name,value) pair, newest first.
func tciPrefix(tagName, tagValue string) []byte {
	buf := make([]byte, 0, len(prefixTCI)+len(tagName)+1+len(tagValue))
	buf = append(buf, prefixTCI...)
	buf = append(buf, tagName...)
	buf = append(buf, 0x22)
	buf = append(buf, tagValue...)
	return buf
}

// tciKey builds the full tagname‖0x22‖tagvalue‖revtime‖id index key.
func tciKey(tagName, tagValue string, createdAt int64, id []byte) []byte {
	buf := tciPrefix(tagName, tagValue)
	buf = append(buf, beU64(revTime(createdAt))...)
	buf = append(buf, id...)
	return buf
}

func withPrefix(prefix, key []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(key))
	buf = append(buf, prefix...)
	buf = append(buf, key...)
	return buf
}

// idFromIndexKey extracts the trailing 32-byte event id from an akci,
// kci, or tci index key (the id is always the last 32 bytes).
func idFromIndexKey(key []byte) []byte {
	if len(key) < 32 {
		return nil
	}
	id := make([]byte, 32)
	copy(id, key[len(key)-32:])
	return id
}

// hasPrefix is a small readability wrapper over bytes.HasPrefix.
func hasPrefix(key, prefix []byte) bool { return bytes.HasPrefix(key, prefix) }
