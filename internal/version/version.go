package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the service current released version.
// Semantic versioning: https://semver.org/
var Version = "0.1.0"

// DevVersion is the service current development version.
var DevVersion = "0.1.0"

// GetCurrentVersion returns the version reported for the given profile mode.
func GetCurrentVersion(mode string) string {
	if mode == "dev" || mode == "demo" {
		return DevVersion
	}
	return Version
}

// IsValid reports whether v is a valid semantic version, with or without the "v" prefix.
func IsValid(v string) bool {
	return semver.IsValid(canonical(v))
}

// Compare returns -1, 0 or +1 as a is older than, equal to or newer than b.
func Compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// String renders the version line printed by "lily version".
func String(mode string) string {
	return fmt.Sprintf("lily %s (%s)", GetCurrentVersion(mode), mode)
}

func canonical(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
