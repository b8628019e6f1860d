// Package relay implements the relay registry (per-relay metadata,
// health, avoidance, component C6) and the relay selector that scores
// candidate relays for a given pubkey and usage (component C4).
package relay

import (
	"strings"
	"time"

	"github.com/pinpox/gossip/internal/store"
)

// Usage is the purpose a caller is selecting relays for.
type Usage int

const (
	Inbox Usage = iota
	Outbox
	DM
)

// Registry is the relay metadata store, backed by internal/store's
// relay table. It adds the connection-policy decisions (rank,
// allow_connect/allow_auth, avoid windows) on top of raw persistence.
type Registry struct {
	st     *store.Store
	banned []string
}

// NewRegistry wraps st. bannedSubstrings is the static banned-domain
// predicate spec.md section 9 leaves unspecified; callers populate it
// from wherever they source such a list (a config file, a bundled
// list, or none at all).
func NewRegistry(st *store.Store, bannedSubstrings []string) *Registry {
	return &Registry{st: st, banned: bannedSubstrings}
}

// Upsert returns the relay record for url, creating it with default
// rank 3 if unseen; an existing record is returned unchanged.
func (reg *Registry) Upsert(url string) (*store.Relay, error) {
	r, err := reg.st.GetRelay(url)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = store.DefaultRelay(url)
		if err := reg.st.PutRelay(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MarkConnected records a successful connection attempt.
func (reg *Registry) MarkConnected(url string, when int64) error {
	r, err := reg.Upsert(url)
	if err != nil {
		return err
	}
	r.SuccessCount++
	r.LastConnectedAt = when
	return reg.st.PutRelay(r)
}

// MarkFailure records a failed connection attempt.
func (reg *Registry) MarkFailure(url string, when int64) error {
	r, err := reg.Upsert(url)
	if err != nil {
		return err
	}
	r.FailureCount++
	return reg.st.PutRelay(r)
}

// MarkGeneralEOSE records that a non-filtered subscription to url
// reached end-of-stored-events at when.
func (reg *Registry) MarkGeneralEOSE(url string, when int64) error {
	r, err := reg.Upsert(url)
	if err != nil {
		return err
	}
	r.LastGeneralEoseAt = when
	return reg.st.PutRelay(r)
}

// Avoid sets an avoid_until window, e.g. after repeated failures.
func (reg *Registry) Avoid(url string, until int64) error {
	r, err := reg.Upsert(url)
	if err != nil {
		return err
	}
	r.AvoidUntil = until
	return reg.st.PutRelay(r)
}

// SetAllowConnect records the user's connection-policy decision for a
// relay (used under a "require approval" policy).
func (reg *Registry) SetAllowConnect(url string, allow store.TriState) error {
	r, err := reg.Upsert(url)
	if err != nil {
		return err
	}
	r.AllowConnect = allow
	return reg.st.PutRelay(r)
}

// isBanned reports whether url matches the static banned-domain list.
func (reg *Registry) isBanned(url string) bool {
	for _, b := range reg.banned {
		if b != "" && strings.Contains(url, b) {
			return true
		}
	}
	return false
}

// requireApproval gates whether an explicit deny in allow_connect
// blocks a relay (an undecided allow_connect does not); callers that run in a "connect freely" policy never call
// ShouldAvoid with requireApproval true.
func (reg *Registry) ShouldAvoid(r *store.Relay, requireApproval bool, now int64) bool {
	if r == nil {
		return true
	}
	if r.Rank == 0 {
		return true
	}
	if requireApproval && r.AllowConnect == store.TriDeny {
		return true
	}
	if reg.isBanned(r.URL) {
		return true
	}
	if r.AvoidUntil > 0 && r.AvoidUntil > now {
		return true
	}
	return false
}

// ShouldAvoidNow is ShouldAvoid evaluated against the wall clock, for
// callers outside a test harness that don't already have a timestamp.
func (reg *Registry) ShouldAvoidNow(r *store.Relay, requireApproval bool) bool {
	return reg.ShouldAvoid(r, requireApproval, time.Now().Unix())
}
