// Package buildinfo holds version information injected at build time via
// -ldflags "-X github.com/watchfire-io/agentwatch/internal/buildinfo.Version=...".
package buildinfo

import "fmt"

var (
	Version    = "dev"
	Codename   = "unknown"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// Summary returns "<version> (<commit>, built <date>)" for one-line output.
func Summary() string {
	commit := CommitHash
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, commit, BuildDate)
}
