// Package version reports the host build version. Skill manifests gate
// compatibility against it through min_version and max_version.
package version

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/mod/semver"
)

var (
	// Version is the host version, set at build time via -ldflags.
	Version = "dev"

	// GitCommit is the git commit SHA that was built
	GitCommit = "unknown"
)

// Info represents version information
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
	}
}

// String returns the string representation of version info
func (i Info) String() string {
	return fmt.Sprintf("Version: %s, GitCommit: %s", i.Version, i.GitCommit)
}

// JSON returns the JSON representation of version info
func (i Info) JSON() (string, error) {
	bytes, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Canonical returns v in the "vMAJOR.MINOR.PATCH" form golang.org/x/mod/semver
// expects, accepting inputs with or without the leading "v". It returns ""
// when v is not a semantic version.
func Canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return semver.Canonical(v)
}

// IsRelease reports whether host is a real semantic version. Development
// builds ("dev") skip compatibility gating.
func IsRelease(host string) bool {
	return Canonical(host) != ""
}

// Compatible reports whether host falls within the inclusive [min, max] range.
// Empty bounds are open. An error is returned when a bound is not a valid
// semantic version.
func Compatible(host, min, max string) (bool, error) {
	h := Canonical(host)
	if h == "" {
		return true, nil
	}
	if strings.TrimSpace(min) != "" {
		m := Canonical(min)
		if m == "" {
			return false, errors.Errorf("invalid min_version %q", min)
		}
		if semver.Compare(h, m) < 0 {
			return false, nil
		}
	}
	if strings.TrimSpace(max) != "" {
		m := Canonical(max)
		if m == "" {
			return false, errors.Errorf("invalid max_version %q", max)
		}
		if semver.Compare(h, m) > 0 {
			return false, nil
		}
	}
	return true, nil
}
