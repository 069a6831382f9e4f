// Package util provides utility functions for the backend.
//
//revive:disable-next-line:var-naming
package util

import (
	"fmt"
	"log"
	"strings"

	"github.com/Masterminds/semver/v3"
	npm "github.com/aquasecurity/go-npm-version/pkg"
	pep440 "github.com/aquasecurity/go-pep440-version"
	"github.com/google/osv-scanner/pkg/models"
)

// VersionCompare orders two version strings: negative when a < b, zero when
// equal, positive when a > b. Returns an error when either side cannot be
// parsed by the ecosystem's scheme.
type VersionCompare func(a, b string) (int, error)

// CompareSemver orders versions by semver rules (Maven and most ecosystems
// coerce acceptably).
func CompareSemver(a, b string) (int, error) {
	va, err := semver.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", a, err)
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

// CompareNPM orders versions by npm rules.
func CompareNPM(a, b string) (int, error) {
	va, err := npm.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", a, err)
	}
	vb, err := npm.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", b, err)
	}
	switch {
	case va.LessThan(vb):
		return -1, nil
	case va.GreaterThan(vb):
		return 1, nil
	default:
		return 0, nil
	}
}

// ComparePEP440 orders versions by PEP 440 rules.
func ComparePEP440(a, b string) (int, error) {
	va, err := pep440.Parse(a)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", a, err)
	}
	vb, err := pep440.Parse(b)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", b, err)
	}
	switch {
	case va.LessThan(vb):
		return -1, nil
	case va.GreaterThan(vb):
		return 1, nil
	default:
		return 0, nil
	}
}

// CompareLexical is the last-resort string ordering.
func CompareLexical(a, b string) (int, error) {
	return strings.Compare(a, b), nil
}

// CompareForEcosystem picks the version ordering for an OSV ecosystem name
// or PURL type.
func CompareForEcosystem(ecosystem string) VersionCompare {
	switch strings.ToLower(NormalizeEcosystem(ecosystem)) {
	case "npm":
		return CompareNPM
	case "pypi":
		return ComparePEP440
	default:
		return CompareSemver
	}
}

// rangeBounds collects the last introduced/fixed/last_affected events of an
// OSV range, which is how multi-event ranges were read upstream.
type rangeBounds struct {
	introduced   string
	fixed        string
	lastAffected string
}

func collectBounds(vrange models.Range) rangeBounds {
	var b rangeBounds
	for _, event := range vrange.Events {
		if event.Introduced != "" {
			b.introduced = event.Introduced
		}
		if event.Fixed != "" {
			b.fixed = event.Fixed
		}
		if event.LastAffected != "" {
			b.lastAffected = event.LastAffected
		}
	}
	return b
}

// complete requires both a lower and an upper boundary. Ranges missing either
// cannot reliably classify a version, so they are treated as not affected to
// avoid false positives.
func (b rangeBounds) complete() bool {
	return b.introduced != "" && (b.fixed != "" || b.lastAffected != "")
}

// IsVersionAffected checks if a version is affected by OSV ranges or the
// explicit version list, using ecosystem-specific version ordering.
func IsVersionAffected(version string, affected models.Affected) bool {
	// Check specific versions list
	for _, v := range affected.Versions {
		if version == v {
			return true
		}
	}

	if len(affected.Ranges) == 0 {
		return false
	}

	cmp := CompareForEcosystem(string(affected.Package.Ecosystem))

	for _, vrange := range affected.Ranges {
		// Only handle SEMVER and ECOSYSTEM types
		if vrange.Type != models.RangeEcosystem && vrange.Type != models.RangeSemVer {
			continue
		}
		if versionWithinRange(version, vrange, cmp) {
			return true
		}
	}

	return false
}

// IsVersionAffectedAny checks if a version is affected by any of the provided
// affected ranges. Convenience wrapper around IsVersionAffected.
func IsVersionAffectedAny(version string, allAffected []models.Affected) bool {
	for _, affected := range allAffected {
		if IsVersionAffected(version, affected) {
			return true
		}
	}
	return false
}

func versionWithinRange(version string, vrange models.Range, cmp VersionCompare) bool {
	bounds := collectBounds(vrange)
	if !bounds.complete() {
		log.Printf("WARNING: Incomplete range data for version %s (introduced=%q fixed=%q last_affected=%q)",
			version, bounds.introduced, bounds.fixed, bounds.lastAffected)
		return false
	}

	// If the version doesn't parse under the ecosystem scheme, fall back to
	// plain string ordering rather than dropping the range entirely.
	if _, err := cmp(version, version); err != nil {
		cmp = CompareLexical
	}

	// "0" means "from the beginning of time" in the OSV spec; the lower
	// bound is satisfied by construction.
	if bounds.introduced != "0" {
		c, err := cmp(version, bounds.introduced)
		if err != nil {
			log.Printf("WARNING: Failed to compare against introduced version %q: %v", bounds.introduced, err)
			return false
		}
		if c < 0 {
			return false // before the introduced version
		}
	}

	if bounds.fixed != "" {
		c, err := cmp(version, bounds.fixed)
		if err != nil {
			log.Printf("WARNING: Failed to compare against fixed version %q: %v", bounds.fixed, err)
			return false
		}
		if c >= 0 {
			return false // at or after the fixed version
		}
	}

	if bounds.lastAffected != "" {
		c, err := cmp(version, bounds.lastAffected)
		if err != nil {
			log.Printf("WARNING: Failed to compare against last_affected version %q: %v", bounds.lastAffected, err)
			return false
		}
		if c > 0 {
			return false // after the last affected version
		}
	}

	return true
}
