package relay

import (
	"sort"

	"github.com/pinpox/gossip/internal/store"
)

// ScoredRelay pairs a relay URL with its selection score, 0-20.
type ScoredRelay struct {
	URL   string
	Score float64
}

const (
	// suggestionDecayDays is the window over which a merely-suggested
	// (never formally declared) relay association's rank decays to
	// zero; an implementer's choice, since the source leaves the exact
	// curve unspecified.
	suggestionDecayDays  = 14
	maxAssociationRank   = 20
	declaredComplementRk = 10
	topUpScore           = 1
)

// SelectRelays implements spec.md section 4.2's algorithm: score every
// PersonRelay row declared or observed for pubkey, discard avoided
// relays, sort descending, and top up to min using the caller's own
// relays when the usage allows it.
//
// ownReadRelays/ownWriteRelays are the local user's own declared
// relays, used only for the top-up step: own READ relays top up
// Outbox queries, own WRITE relays top up every other usage.
func SelectRelays(
	reg *Registry,
	pubkey string,
	usage Usage,
	min int,
	ownReadRelays, ownWriteRelays []string,
	requireApproval bool,
	now int64,
) ([]ScoredRelay, error) {
	rows, err := reg.st.PersonRelays(pubkey)
	if err != nil {
		return nil, err
	}

	var scored []ScoredRelay
	for _, pr := range rows {
		if usage == DM && !pr.DM {
			continue
		}
		r, getErr := reg.st.GetRelay(pr.URL)
		if getErr != nil {
			return nil, getErr
		}
		if reg.ShouldAvoid(r, requireApproval, now) {
			continue
		}

		assoc := associationRank(pr, usage, now)
		score := assoc
		if assoc < maxAssociationRank {
			score = assoc * (float64(r.Rank) / 3) * (0.75 + 0.25*r.SuccessRate())
		}
		if score > maxAssociationRank {
			score = maxAssociationRank
		}
		scored = append(scored, ScoredRelay{URL: pr.URL, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if usage == DM {
		return scored, nil
	}

	cut := len(scored)
	for i, sr := range scored {
		if sr.Score == maxAssociationRank || i < min {
			continue
		}
		cut = i
		break
	}
	scored = scored[:cut]

	if len(scored) < min {
		var topUp []string
		if usage == Outbox {
			topUp = ownReadRelays
		} else {
			topUp = ownWriteRelays
		}
		have := make(map[string]bool, len(scored))
		for _, sr := range scored {
			have[sr.URL] = true
		}
		for _, url := range topUp {
			if len(scored) >= min {
				break
			}
			if have[url] {
				continue
			}
			scored = append(scored, ScoredRelay{URL: url, Score: topUpScore})
			have[url] = true
		}
	}

	return scored, nil
}

// associationRank scores how strongly pr declares relevance for usage:
// 20 if declared for usage itself, 10 if declared for the complementary
// usage, otherwise a freshness-decayed value derived from
// last_suggested (spec.md section 4.2 step 2).
func associationRank(pr *store.PersonRelay, usage Usage, now int64) float64 {
	declared, complementary := usageBools(pr, usage)
	if declared {
		return maxAssociationRank
	}
	if complementary {
		return declaredComplementRk
	}
	if pr.LastSuggested <= 0 {
		return 0
	}
	ageDays := float64(now-pr.LastSuggested) / 86400
	if ageDays <= 0 {
		return declaredComplementRk
	}
	decayed := declaredComplementRk * (1 - ageDays/suggestionDecayDays)
	if decayed < 0 {
		return 0
	}
	return decayed
}

func usageBools(pr *store.PersonRelay, usage Usage) (declared, complementary bool) {
	switch usage {
	case Inbox:
		return pr.Read, pr.Write
	case Outbox:
		return pr.Write, pr.Read
	default:
		return pr.DM, false
	}
}
