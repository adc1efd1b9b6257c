package agentversion

import "fmt"

var (
	version   string
	commit    string
	buildTime string
)

// Version returns the agent version string.
func Version() string {
	if version == "" {
		version = "dev"
	}

	return fmt.Sprintf("version: %s, commit: %s, build time: %s", version, commit, buildTime)
}
