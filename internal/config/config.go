// Package config loads gossip's process-wide settings record: a TOML
// file under the resolved profile directory, layered over built-in
// defaults, the way the teacher's LoadConfig layers a config.toml over
// defaultConfig().
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// C is the single settings record; callers read its fields directly.
// Mutating a field and calling Save publishes the change to disk; there
// is no separate change-notification channel because nothing in this
// module subscribes to live config updates yet (the teacher's own
// config is read once at startup too).
type C struct {
	Relays        []string `toml:"relays"`
	MaxPerHost    int      `toml:"max_per_host"`
	LoopPeriodMs  int      `toml:"loop_period_ms"`
	LowExclusion  int      `toml:"low_exclusion_secs"`
	MedExclusion  int      `toml:"med_exclusion_secs"`
	HighExclusion int      `toml:"high_exclusion_secs"`
	KDFLogN       uint8    `toml:"kdf_log_n"`
	PoWZeroBits   int      `toml:"pow_zero_bits"`
	PruneBeforeS  int64    `toml:"prune_before_unix"`
	LogLevel      string   `toml:"log_level"`
}

func defaults() C {
	return C{
		Relays: []string{
			"wss://relay.damus.io",
			"wss://relay.nostr.band",
			"wss://nos.lol",
		},
		MaxPerHost:    3,
		LoopPeriodMs:  1800,
		LowExclusion:  10,
		MedExclusion:  60,
		HighExclusion: 300,
		KDFLogN:       18,
		PoWZeroBits:   0,
		LogLevel:      "info",
	}
}

// Load reads <profileDir>/config.toml, falling back to built-in
// defaults for any field the file doesn't set and for the whole
// struct when the file doesn't exist yet.
func Load(path string) (cfg C, err error) {
	cfg = defaults()
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return cfg, nil
		}
		return cfg, readErr
	}
	if err = toml.Unmarshal(data, &cfg); err != nil {
		return
	}
	if len(cfg.Relays) == 0 {
		cfg.Relays = defaults().Relays
	}
	if cfg.MaxPerHost <= 0 {
		cfg.MaxPerHost = defaults().MaxPerHost
	}
	if cfg.LoopPeriodMs <= 0 {
		cfg.LoopPeriodMs = defaults().LoopPeriodMs
	}
	return
}

// Save writes cfg to path as TOML, creating the file if necessary.
func Save(path string, cfg C) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
