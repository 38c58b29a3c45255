package versionkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformedKey is returned when an id_version string cannot be split into a UUID and a version.
var ErrMalformedKey = errors.New("malformed version key")

// ErrMalformedVersion is returned when a version is not a dotted integer triple.
var ErrMalformedVersion = errors.New("malformed version")

// Initial is the version assigned to a freshly created applet.
const Initial = "1.0.0"

// Make binds an entity id to an applet version as "{id}_{version}".
func Make(id, version string) string {
	return id + "_" + version
}

// Parse splits an id_version key. The key must be exactly one UUID, one underscore
// and a non-empty remainder.
func Parse(key string) (string, string, error) {
	idx := strings.IndexByte(key, '_')
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	id, version := key[:idx], key[idx+1:]
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedKey, key)
	}
	return id, version, nil
}

// Bump selects which component of a version is incremented.
type Bump int

const (
	BumpNone Bump = iota
	BumpPatch
	BumpMinor
	BumpMajor
)

// String implements fmt.Stringer.
func (b Bump) String() string {
	switch b {
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	default:
		return "none"
	}
}

// Max returns the stronger of two bumps.
func (b Bump) Max(other Bump) Bump {
	if other > b {
		return other
	}
	return b
}

// Version is a dotted integer triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "X.Y.Z". Each component is plain decimal digits without a sign
// or leading zeros, so every version has exactly one spelling.
func ParseVersion(raw string) (Version, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, raw)
	}
	nums := make([]int, 3)
	for i, part := range parts {
		if !canonicalDigits(part) {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, raw)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, raw)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

func canonicalDigits(part string) bool {
	if part == "" || (len(part) > 1 && part[0] == '0') {
		return false
	}
	for _, c := range part {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// String renders the triple.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 under integer ordering of the components.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Patch - other.Patch)
	}
}

// Next applies the bump. BumpNone is treated as a patch so the result is always greater.
func (v Version) Next(b Bump) Version {
	switch b {
	case BumpMajor:
		return Version{Major: v.Major + 1}
	case BumpMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
