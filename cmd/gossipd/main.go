// Command gossipd wires the five core subsystems together and feeds
// relay events into the store. It owns the nostr.SimplePool boundary
// so the core packages are exercised end-to-end; its own control flow
// is a thin driver, not part of the core's surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/pinpox/gossip/internal/config"
	"github.com/pinpox/gossip/internal/fetch"
	"github.com/pinpox/gossip/internal/identity"
	"github.com/pinpox/gossip/internal/logging"
	"github.com/pinpox/gossip/internal/person"
	"github.com/pinpox/gossip/internal/relay"
	"github.com/pinpox/gossip/internal/store"
)

func main() {
	passFlag := flag.String("passphrase", "", "passphrase to unlock the stored private key")
	flag.Parse()

	profileDir, err := config.ProfileDir(os.Getenv("GOSSIP_DIR"), os.Getenv("GOSSIP_PROFILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "profile dir: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir profile dir: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(filepath.Join(profileDir, "config.toml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	logging.Infof("profile dir %s, %d configured relays", profileDir, len(cfg.Relays))

	st, err := store.Open(config.StoreDir(profileDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "store open: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	var id *identity.Manager
	id = identity.New(func() {
		st.SetOwnPubkey(id.Pubkey())
		if n, err := st.ReindexUnindexedGiftWraps(); err != nil {
			logging.Warnf("reindex gift wraps: %v", err)
		} else if n > 0 {
			logging.Infof("reindexed %d gift wraps now that identity is unlocked", n)
		}
	})
	st.SetGiftUnwrapper(id)

	if epk := os.Getenv("GOSSIP_ENCRYPTED_KEY"); epk != "" {
		pubkey := os.Getenv("GOSSIP_PUBKEY")
		if err := id.SetEncryptedPrivateKey(pubkey, epk); err != nil {
			fmt.Fprintf(os.Stderr, "set encrypted key: %v\n", err)
			os.Exit(1)
		}
		if *passFlag != "" {
			if _, err := id.Unlock(*passFlag); err != nil {
				fmt.Fprintf(os.Stderr, "unlock: %v\n", err)
				os.Exit(1)
			}
		}
	}

	relayReg := relay.NewRegistry(st, nil)
	for _, url := range cfg.Relays {
		if _, err := relayReg.Upsert(url); err != nil {
			logging.Warnf("seed relay %s: %v", url, err)
		}
	}

	fetcher := fetch.New(fetch.Config{
		CacheDir:      config.CacheDir(profileDir),
		MaxPerHost:    cfg.MaxPerHost,
		LoopPeriod:    time.Duration(cfg.LoopPeriodMs) * time.Millisecond,
		LowExclusion:  time.Duration(cfg.LowExclusion) * time.Second,
		MedExclusion:  time.Duration(cfg.MedExclusion) * time.Second,
		HighExclusion: time.Duration(cfg.HighExclusion) * time.Second,
		UserAgent:     "gossipd/0",
	})
	personReg := person.NewRegistry(st, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := nostr.NewSimplePool(ctx, nostr.WithAuthHandler(func(ctx context.Context, ie nostr.RelayEvent) error {
		logging.Infof("NIP-42 auth requested by %s", ie.Relay.URL)
		return id.SignEvent(ie.Event)
	}))
	defer pool.Close("shutdown")

	go runFetchLoop(ctx, fetcher, time.Duration(cfg.LoopPeriodMs)*time.Millisecond)

	ingest(ctx, pool, st, personReg, cfg.Relays)
}

// runFetchLoop drives the fetcher's queue on the configured cadence
// until ctx is cancelled.
func runFetchLoop(ctx context.Context, f *fetch.Fetcher, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.Shutdown()
			return
		case <-ticker.C:
			f.Tick(ctx)
		}
	}
}

// ingest subscribes across relays and writes every accepted event into
// the store, upserting a person record for its author along the way.
func ingest(ctx context.Context, pool *nostr.SimplePool, st *store.Store, personReg *person.Registry, relays []string) {
	filter := nostr.Filter{Limit: 500}
	for ie := range pool.SubscribeMany(ctx, relays, filter) {
		if _, err := personReg.Upsert(ie.PubKey, time.Now().Unix()); err != nil {
			logging.Warnf("upsert person %s: %v", ie.PubKey, err)
		}
		if err := st.PutEventIfNew(ie.Event); err != nil {
			logging.Warnf("store event %s: %v", ie.ID, err)
		}
	}
}
