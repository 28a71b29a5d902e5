package dependency

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the dependency variants.
type Kind int

const (
	// KindUnit is a dependency on another extension unit by id.
	KindUnit Kind = iota
	// KindToken is a capability requirement satisfied by any provider.
	KindToken
	// KindPackage is a dependency on a package visible on the host classpath.
	KindPackage
	// KindPlatform is a platform (runtime version) requirement.
	KindPlatform
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindToken:
		return "token"
	case KindPackage:
		return "package"
	case KindPlatform:
		return "platform"
	default:
		return "unknown"
	}
}

// Comparison is the version constraint attached to a dependency.
type Comparison int

const (
	// CompareAny accepts any version.
	CompareAny Comparison = iota
	// CompareSpec requires a specification version >= Version.
	CompareSpec
	// CompareImpl pins the exact implementation version.
	CompareImpl
)

// Relation is the strength of a token dependency.
type Relation int

const (
	// Requires must be satisfied before the unit can be enabled.
	Requires Relation = iota
	// Needs must be satisfied but imposes no ordering.
	Needs
	// Recommends is satisfied opportunistically.
	Recommends
)

// String returns the manifest keyword for the relation.
func (r Relation) String() string {
	switch r {
	case Needs:
		return "needs"
	case Recommends:
		return "recommends"
	default:
		return "requires"
	}
}

// NoMajor marks a unit dependency without a major release version.
const NoMajor = -1

// Dependency is a single declared dependency. Field use depends on Kind:
// Major only applies to unit dependencies, Relation only to tokens.
type Dependency struct {
	Kind       Kind
	Name       string
	Major      int
	Comparison Comparison
	Version    string
	Relation   Relation
}

// Unit returns a unit dependency. Pass NoMajor when no release is declared.
func Unit(id string, major int, cmp Comparison, version string) Dependency {
	if major < 0 {
		major = NoMajor
	}
	return Dependency{Kind: KindUnit, Name: id, Major: major, Comparison: cmp, Version: version}
}

// Token returns a token dependency with the given relation.
func Token(rel Relation, name string) Dependency {
	return Dependency{Kind: KindToken, Name: name, Major: NoMajor, Relation: rel}
}

// Package returns a package dependency. name may carry a sample class
// qualifier, e.g. "org.foo[Bar]".
func Package(name string, cmp Comparison, version string) Dependency {
	return Dependency{Kind: KindPackage, Name: name, Major: NoMajor, Comparison: cmp, Version: version}
}

// Platform returns a platform dependency.
func Platform(name string, cmp Comparison, version string) Dependency {
	return Dependency{Kind: KindPlatform, Name: name, Major: NoMajor, Comparison: cmp, Version: version}
}

// Target returns the name dependencies are indexed by: the unit id, the token
// name, or the package base name without its sample class.
func (d Dependency) Target() string {
	if d.Kind == KindPackage {
		if i := strings.IndexByte(d.Name, '['); i >= 0 {
			return d.Name[:i]
		}
	}
	return d.Name
}

// SampleClass returns the class qualifier of a package dependency, if any.
func (d Dependency) SampleClass() string {
	if d.Kind != KindPackage {
		return ""
	}
	i := strings.IndexByte(d.Name, '[')
	if i < 0 || !strings.HasSuffix(d.Name, "]") {
		return ""
	}
	return d.Name[i+1 : len(d.Name)-1]
}

// ImplPinned reports whether the dependency pins an implementation version.
// Such a dependency is also a friend relationship for visibility purposes.
func (d Dependency) ImplPinned() bool {
	return d.Comparison == CompareImpl
}

// String renders the dependency in manifest syntax.
func (d Dependency) String() string {
	var b strings.Builder
	if d.Kind == KindToken {
		b.WriteString(d.Relation.String())
		b.WriteString(": ")
		b.WriteString(d.Name)
		return b.String()
	}
	b.WriteString(d.Name)
	if d.Kind == KindUnit && d.Major != NoMajor {
		b.WriteByte('/')
		b.WriteString(strconv.Itoa(d.Major))
	}
	switch d.Comparison {
	case CompareSpec:
		b.WriteString(" > ")
		b.WriteString(d.Version)
	case CompareImpl:
		b.WriteString(" = ")
		b.WriteString(d.Version)
	}
	return b.String()
}

// Parse reads a unit, package or platform dependency in manifest syntax:
//
//	org.foo/1 > 1.2       unit, release 1, spec >= 1.2
//	org.foo = 20240101    unit, impl pinned
//	org.pkg[Sample] > 1.0 package with sample class
//	Java > 17             platform
//
// Token dependencies have no version and are built with ParseToken.
func Parse(kind Kind, s string) (Dependency, error) {
	if kind == KindToken {
		return ParseToken(Requires, s)
	}

	name, cmp, version, err := splitConstraint(s)
	if err != nil {
		return Dependency{}, err
	}

	switch kind {
	case KindUnit:
		id, major, err := splitMajor(name)
		if err != nil {
			return Dependency{}, fmt.Errorf("dependency %q: %w", s, err)
		}
		if !validQualifiedName(id) {
			return Dependency{}, fmt.Errorf("dependency %q: invalid unit id %q", s, id)
		}
		if cmp == CompareSpec {
			if _, err := ParseSpecVersion(version); err != nil {
				return Dependency{}, fmt.Errorf("dependency %q: %w", s, err)
			}
		}
		return Unit(id, major, cmp, version), nil

	case KindPackage:
		base := name
		if i := strings.IndexByte(name, '['); i >= 0 {
			if !strings.HasSuffix(name, "]") || i == len(name)-2 {
				return Dependency{}, fmt.Errorf("dependency %q: malformed sample class", s)
			}
			base = name[:i]
		}
		if !validQualifiedName(base) {
			return Dependency{}, fmt.Errorf("dependency %q: invalid package %q", s, base)
		}
		if cmp == CompareSpec {
			if _, err := ParseSpecVersion(version); err != nil {
				return Dependency{}, fmt.Errorf("dependency %q: %w", s, err)
			}
		}
		return Package(name, cmp, version), nil

	case KindPlatform:
		if name == "" {
			return Dependency{}, fmt.Errorf("dependency %q: missing platform name", s)
		}
		return Platform(name, cmp, version), nil
	}

	return Dependency{}, fmt.Errorf("dependency %q: unsupported kind %s", s, kind)
}

// ParseToken reads a token name.
func ParseToken(rel Relation, s string) (Dependency, error) {
	name := strings.TrimSpace(s)
	if !validQualifiedName(name) {
		return Dependency{}, fmt.Errorf("invalid token name %q", s)
	}
	return Token(rel, name), nil
}

// ParseAll parses a list of dependencies of one kind, stopping at the first error.
func ParseAll(kind Kind, values []string) ([]Dependency, error) {
	deps := make([]Dependency, 0, len(values))
	for _, v := range values {
		d, err := Parse(kind, v)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}

// ParseTokens parses a list of token names with the given relation.
func ParseTokens(rel Relation, values []string) ([]Dependency, error) {
	deps := make([]Dependency, 0, len(values))
	for _, v := range values {
		d, err := ParseToken(rel, v)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}

func splitConstraint(s string) (name string, cmp Comparison, version string, err error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ">="); i >= 0 {
		name = strings.TrimSpace(s[:i])
		version = strings.TrimSpace(s[i+1:])
		if s[i] == '>' {
			cmp = CompareSpec
		} else {
			cmp = CompareImpl
		}
		if version == "" {
			return "", 0, "", fmt.Errorf("dependency %q: missing version after %q", s, s[i:i+1])
		}
		if strings.ContainsAny(version, " \t") {
			return "", 0, "", fmt.Errorf("dependency %q: malformed version %q", s, version)
		}
		return name, cmp, version, nil
	}
	return s, CompareAny, "", nil
}

func splitMajor(name string) (string, int, error) {
	i := strings.IndexByte(name, '/')
	if i < 0 {
		return name, NoMajor, nil
	}
	major, err := strconv.Atoi(name[i+1:])
	if err != nil || major < 0 {
		return "", 0, fmt.Errorf("invalid major release %q", name[i+1:])
	}
	return name[:i], major, nil
}

// validQualifiedName checks for a dot-separated sequence of identifiers.
func validQualifiedName(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_' || r == '$' || r == '-':
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
				if i == 0 {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}
