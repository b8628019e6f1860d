// Package person implements the person registry (component C7):
// per-pubkey metadata, NIP-05 validity, and list membership (muted,
// followed, and user-defined pubkey sets).
package person

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pinpox/gossip/internal/store"
)

// Metadata is the profile fields a kind-0 event's content carries.
// Grounded on the fields the teacher's channel/profile fetch code reads
// off kind-0/kind-40/41 content (nostr.go's fetchChannelMetaCmd and
// sibling profile lookups use the same flat name/about/picture shape).
type Metadata struct {
	Name    string `json:"name,omitempty"`
	About   string `json:"about,omitempty"`
	Picture string `json:"picture,omitempty"`
	NIP05   string `json:"nip05,omitempty"`
	LUD16   string `json:"lud16,omitempty"`
}

// URLFetcher is the narrow slice of the C3 fetcher that person needs:
// a cached, synchronous-or-error resource read. internal/fetch.Fetcher
// satisfies this; declaring it here (rather than importing
// internal/fetch directly) keeps person's dependency surface to
// exactly what it uses, the same narrow-interface discipline
// internal/store uses for GiftUnwrapper.
type URLFetcher interface {
	TryGet(url string, maxAge time.Duration) ([]byte, bool, error)
}

// Registry is the person metadata/list store, backed by internal/store.
type Registry struct {
	st      *store.Store
	fetcher URLFetcher

	mu    sync.RWMutex
	cache map[string]*Metadata // pubkey -> memoized parsed metadata
}

func NewRegistry(st *store.Store, fetcher URLFetcher) *Registry {
	return &Registry{st: st, fetcher: fetcher, cache: make(map[string]*Metadata)}
}

// Upsert creates the person record if unseen, recording first
// encounter time.
func (r *Registry) Upsert(pubkey string, now int64) (*store.Person, error) {
	p, err := r.st.GetPerson(pubkey)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &store.Person{Pubkey: pubkey, FirstEncountered: now}
		if err := r.st.PutPerson(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SetMetadata stores a kind-0 event's content as the person's metadata
// JSON, provided createdAt is newer than what's stored (NIP-01 "latest
// wins" for non-addressable metadata events). Clears the memoized
// parse on change.
func (r *Registry) SetMetadata(pubkey, contentJSON string, createdAt int64) error {
	p, err := r.Upsert(pubkey, createdAt)
	if err != nil {
		return err
	}
	if createdAt <= p.MetadataCreatedAt {
		return nil
	}
	p.MetadataJSON = contentJSON
	p.MetadataCreatedAt = createdAt
	if err := r.st.PutPerson(p); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.cache, pubkey)
	r.mu.Unlock()
	return nil
}

// Metadata returns the pubkey's parsed profile, deserializing and
// memoizing on first access per spec.md section 3's "lazily
// deserialized and memoized" requirement.
func (r *Registry) Metadata(pubkey string) (*Metadata, error) {
	r.mu.RLock()
	if m, ok := r.cache[pubkey]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	p, err := r.st.GetPerson(pubkey)
	if err != nil || p == nil || p.MetadataJSON == "" {
		return nil, err
	}
	var m Metadata
	if err := json.Unmarshal([]byte(p.MetadataJSON), &m); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[pubkey] = &m
	r.mu.Unlock()
	return &m, nil
}

// SetPetname records a local override name for pubkey.
func (r *Registry) SetPetname(pubkey, petname string, now int64) error {
	p, err := r.Upsert(pubkey, now)
	if err != nil {
		return err
	}
	p.Petname = petname
	return r.st.PutPerson(p)
}

// DisplayName returns the petname if set, else the profile name, else
// a shortened pubkey.
func (r *Registry) DisplayName(pubkey string) string {
	if p, err := r.st.GetPerson(pubkey); err == nil && p != nil && p.Petname != "" {
		return p.Petname
	}
	if m, err := r.Metadata(pubkey); err == nil && m != nil && m.Name != "" {
		return m.Name
	}
	if len(pubkey) > 12 {
		return pubkey[:8] + "…" + pubkey[len(pubkey)-4:]
	}
	return pubkey
}

// FetchAvatar fetches (and caches, via the URLFetcher) the bytes of a
// person's profile picture.
func (r *Registry) FetchAvatar(pubkey string, maxAge time.Duration) ([]byte, error) {
	m, err := r.Metadata(pubkey)
	if err != nil || m == nil || m.Picture == "" {
		return nil, err
	}
	body, _, err := r.fetcher.TryGet(m.Picture, maxAge)
	return body, err
}
