package scanning

import (
	"fmt"
	"time"
)

// ProfileSpec is the fixed command template and timeout ceiling for one
// scan profile. Templates are hardcoded so argument injection is
// structurally impossible.
type ProfileSpec struct {
	Args        []string
	Timeout     time.Duration
	Description string
}

// profileSpecs maps each profile to its argument template. The target is
// appended last, after "-oX -", and is never interpolated elsewhere.
var profileSpecs = map[Profile]ProfileSpec{
	ProfileQuick: {
		Args:        []string{"-sT", "-Pn", "-p1-1024", "-T3", "--min-rate", "100"},
		Timeout:     300 * time.Second,
		Description: "Quick TCP connect scan on common ports",
	},
	ProfileFull: {
		Args:        []string{"-sT", "-Pn", "-p-", "-T4"},
		Timeout:     1800 * time.Second,
		Description: "Full TCP scan on all ports",
	},
	ProfileServiceDetection: {
		Args:        []string{"-sT", "-sV", "-Pn", "-p1-65535", "-T4"},
		Timeout:     2400 * time.Second,
		Description: "Port and service version detection",
	},
	ProfileVulnScan: {
		Args:        []string{"-sT", "-sV", "-sC", "-Pn", "-p1-1024", "-T3", "--script", "vuln"},
		Timeout:     1800 * time.Second,
		Description: "Vulnerability detection with scanner scripts",
	},
	ProfileUDPScan: {
		Args:        []string{"-sU", "-Pn", "-p53,67,68,69,123,161,162,500,514,1434", "-T4"},
		Timeout:     900 * time.Second,
		Description: "UDP scan on common ports",
	},
}

// Spec returns the profile's command template and timeout.
func (p Profile) Spec() (ProfileSpec, bool) {
	spec, ok := profileSpecs[p]
	return spec, ok
}

// Valid reports whether the profile is a known enum value.
func (p Profile) Valid() bool {
	_, ok := profileSpecs[p]
	return ok
}

// ParseProfile converts a string into a known Profile.
func ParseProfile(s string) (Profile, error) {
	p := Profile(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown scan profile %q", s)
	}
	return p, nil
}

// Profiles returns all known profiles in a stable order.
func Profiles() []Profile {
	return []Profile{
		ProfileQuick,
		ProfileFull,
		ProfileServiceDetection,
		ProfileVulnScan,
		ProfileUDPScan,
	}
}
