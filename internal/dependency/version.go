package dependency

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseSpecVersion parses a specification version. Specification versions
// are dotted decimals of one to three components ("1", "1.2", "1.2.3");
// missing components count as zero.
func ParseSpecVersion(v string) (*semver.Version, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, fmt.Errorf("empty specification version")
	}
	if strings.Count(v, ".") > 2 || strings.ContainsAny(v, "-+vV") {
		return nil, fmt.Errorf("invalid specification version %q", v)
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("invalid specification version %q: %w", v, err)
	}
	return sv, nil
}

// CompareSpecVersions returns -1, 0 or 1 as a is older than, equal to or
// newer than b.
func CompareSpecVersions(a, b string) (int, error) {
	av, err := ParseSpecVersion(a)
	if err != nil {
		return 0, err
	}
	bv, err := ParseSpecVersion(b)
	if err != nil {
		return 0, err
	}
	return av.Compare(bv), nil
}

// Older reports whether existing is strictly older than pattern. Both must
// share kind and target. Unit dependencies order by major release first and
// then by specification version; package dependencies by specification
// version only. An impl-pinned existing dependency is never older, so it is
// never silently upgraded.
func Older(existing, pattern Dependency) bool {
	if existing.Kind != pattern.Kind || existing.Target() != pattern.Target() {
		return false
	}
	if existing.Comparison == CompareImpl {
		return false
	}
	switch existing.Kind {
	case KindUnit:
		if existing.Major < pattern.Major {
			return true
		}
		if existing.Major > pattern.Major {
			return false
		}
		return specOlder(existing, pattern)
	case KindPackage:
		return specOlder(existing, pattern)
	default:
		return false
	}
}

func specOlder(existing, pattern Dependency) bool {
	if pattern.Comparison != CompareSpec {
		return false
	}
	if existing.Comparison != CompareSpec {
		return true
	}
	cmp, err := CompareSpecVersions(existing.Version, pattern.Version)
	if err != nil {
		// Unparseable versions were rejected when the values were built.
		return false
	}
	return cmp < 0
}

// Satisfies reports whether a unit with the given major release, spec and
// impl versions satisfies unit dependency d.
func Satisfies(d Dependency, major int, spec, impl string) bool {
	if d.Kind != KindUnit {
		return false
	}
	if d.Major != NoMajor && d.Major != major {
		return false
	}
	switch d.Comparison {
	case CompareSpec:
		if spec == "" {
			return false
		}
		cmp, err := CompareSpecVersions(spec, d.Version)
		return err == nil && cmp >= 0
	case CompareImpl:
		return impl == d.Version
	}
	return true
}
