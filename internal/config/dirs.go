package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/pinpox/gossip/internal/errs"
)

const reservedProfileName = "cache"

// ProfileDir resolves the on-disk profile directory per the env var
// contract: GOSSIP_DIR overrides the base data directory (it must
// already exist), GOSSIP_PROFILE names a subdirectory of base for
// per-profile isolation. "cache" is reserved. The resolved path must be
// a direct child of base — a defense against directory traversal via a
// crafted GOSSIP_PROFILE value.
func ProfileDir(gossipDir, gossipProfile string) (dir string, err error) {
	base := gossipDir
	if base == "" {
		base = filepath.Join(xdg.DataHome, "gossip")
	} else if info, statErr := os.Stat(base); statErr != nil || !info.IsDir() {
		err = errs.New(errs.General, statErr, "GOSSIP_DIR %q is not an existing directory", base)
		return
	}
	if gossipProfile == "" {
		return base, nil
	}
	if gossipProfile == reservedProfileName {
		err = errs.New(errs.General, nil, "profile name %q is reserved", gossipProfile)
		return
	}
	joined := filepath.Join(base, gossipProfile)
	rel, relErr := filepath.Rel(base, joined)
	if relErr != nil || rel == "." || rel == ".." || strings.ContainsRune(rel, filepath.Separator) {
		err = errs.New(errs.General, relErr, "profile %q is not a direct child of the base directory", gossipProfile)
		return
	}
	dir = joined
	return
}

// StoreDir returns the embedded key/value environment directory under
// a resolved profile directory.
func StoreDir(profileDir string) string { return filepath.Join(profileDir, "badger") }

// CacheDir returns the HTTP fetcher's cache directory under a resolved
// profile directory.
func CacheDir(profileDir string) string { return filepath.Join(profileDir, "cache") }
