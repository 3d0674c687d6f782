package app

import "github.com/kart-io/version"

// GetVersion returns the git version stamped at build time, or "dev" for
// unstamped builds.
func GetVersion() string {
	if v := version.Get().GitVersion; v != "" {
		return v
	}
	return "dev"
}
