package update

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed release version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string // "beta.1" in v1.2.3-beta.1
	Raw        string // the original string
}

// semverRegex accepts an optional v prefix and prerelease suffix.
var semverRegex = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([a-zA-Z0-9.-]+))?$`)

// ParseVersion parses a release tag or build version. Non-semver strings
// (dev builds, commit-hash releases) parse into a raw-only Version.
func ParseVersion(s string) (*Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty version string")
	}

	v := &Version{Raw: s}

	if s == "dev" || s == "unknown" || strings.HasPrefix(s, "dev-") {
		return v, nil
	}

	matches := semverRegex.FindStringSubmatch(s)
	if matches == nil {
		// Commit-hash releases compare by raw string only.
		return v, nil
	}

	var err error
	if v.Major, err = strconv.Atoi(matches[1]); err != nil {
		return nil, fmt.Errorf("invalid major version: %w", err)
	}
	if v.Minor, err = strconv.Atoi(matches[2]); err != nil {
		return nil, fmt.Errorf("invalid minor version: %w", err)
	}
	if v.Patch, err = strconv.Atoi(matches[3]); err != nil {
		return nil, fmt.Errorf("invalid patch version: %w", err)
	}
	if len(matches) > 4 {
		v.Prerelease = matches[4]
	}
	return v, nil
}

// IsDevBuild reports whether this is a local development build. Commit-hash
// releases are production versions, not dev builds.
func (v *Version) IsDevBuild() bool {
	if v.Raw == "dev" || v.Raw == "unknown" || strings.HasPrefix(v.Raw, "dev-") {
		return true
	}
	return strings.Contains(v.Raw, "-dirty")
}

// IsSemver reports whether the version parsed as a semantic version.
func (v *Version) IsSemver() bool {
	return v.Major > 0 || v.Minor > 0 || v.Patch > 0 || v.Prerelease != ""
}

// Compare returns -1, 0 or 1 ordering v against other. Dev builds order
// before any release; distinct non-semver versions order as "might need
// update" so commit-hash builds still offer upgrades.
func (v *Version) Compare(other *Version) int {
	if v.IsDevBuild() != other.IsDevBuild() {
		if v.IsDevBuild() {
			return -1
		}
		return 1
	}
	if v.IsDevBuild() {
		if v.Raw == other.Raw {
			return 0
		}
		return -1
	}

	if !v.IsSemver() && !other.IsSemver() {
		if v.Raw == other.Raw {
			return 0
		}
		return -1
	}
	// Semver outranks commit-hash releases so hash builds converge on tags.
	if v.IsSemver() != other.IsSemver() {
		if v.IsSemver() {
			return 1
		}
		return -1
	}

	if c := cmpInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmpInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := cmpInt(v.Patch, other.Patch); c != 0 {
		return c
	}

	// A release outranks its own prereleases.
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	return strings.Compare(v.Prerelease, other.Prerelease)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String returns the canonical v-prefixed form, or the raw string for
// dev builds.
func (v *Version) String() string {
	if v.IsDevBuild() {
		return v.Raw
	}
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// NeedsUpdate reports whether other is newer than v.
func (v *Version) NeedsUpdate(other *Version) bool {
	return v.Compare(other) < 0
}
