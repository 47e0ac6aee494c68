package ir

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ProtocolVersion is the version of the DAO protocol implemented by govkit.
var ProtocolVersion = [3]uint8{1, 0, 0}

// VersionTag addresses one build of one release inside a plugin repository.
// Release 0 and build 0 are never valid.
type VersionTag struct {
	Release uint8  `json:"release" yaml:"release" cbor:"1,keyasint"`
	Build   uint16 `json:"build" yaml:"build" cbor:"2,keyasint"`
}

// Valid reports whether both components are non-zero.
func (t VersionTag) Valid() bool {
	return t.Release > 0 && t.Build > 0
}

// String renders the tag as "v<release>.<build>".
func (t VersionTag) String() string {
	return fmt.Sprintf("v%d.%d", t.Release, t.Build)
}

// ParseVersionTag parses "v<release>.<build>" (the "v" is optional).
// The string must be a valid semantic version prefix with no patch component.
func ParseVersionTag(s string) (VersionTag, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) || semver.Prerelease(s) != "" || semver.Build(s) != "" {
		return VersionTag{}, fmt.Errorf("invalid version tag %q", s)
	}
	if strings.Count(s, ".") != 1 {
		return VersionTag{}, fmt.Errorf("invalid version tag %q: want v<release>.<build>", s)
	}
	parts := strings.SplitN(strings.TrimPrefix(semver.MajorMinor(s), "v"), ".", 2)
	release, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return VersionTag{}, fmt.Errorf("invalid release in %q: %w", s, err)
	}
	build, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return VersionTag{}, fmt.Errorf("invalid build in %q: %w", s, err)
	}
	return VersionTag{Release: uint8(release), Build: uint16(build)}, nil
}

// Compare orders tags by release, then build.
func (t VersionTag) Compare(o VersionTag) int {
	switch {
	case t.Release < o.Release:
		return -1
	case t.Release > o.Release:
		return 1
	case t.Build < o.Build:
		return -1
	case t.Build > o.Build:
		return 1
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t VersionTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *VersionTag) UnmarshalText(text []byte) error {
	parsed, err := ParseVersionTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
