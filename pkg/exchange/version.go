package exchange

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// Definition names the stored state shape; Version is the code's version.
// Both are stamped into the version_info singleton at instantiation and on
// every migrate.
const (
	Definition = "atsd-exchange"
	Version    = "v0.2.0"
)

// VersionInfo is the persisted version singleton.
type VersionInfo struct {
	Definition string `json:"definition"`
	Version    string `json:"version"`
}

// checkUpgrade rejects downgrades and versions the code cannot parse.
// Order entries are never touched by migration; only the singletons are
// re-validated and re-stamped.
func checkUpgrade(stored VersionInfo) error {
	if stored.Definition != Definition {
		return fmt.Errorf("%w: definition %q => %q", ErrUnsupportedUpgrade, stored.Definition, Definition)
	}
	if !semver.IsValid(stored.Version) {
		return fmt.Errorf("%w: stored version %q", ErrUnsupportedUpgrade, stored.Version)
	}
	if semver.Compare(stored.Version, Version) > 0 {
		return fmt.Errorf("%w: %s => %s", ErrUnsupportedUpgrade, stored.Version, Version)
	}
	return nil
}
