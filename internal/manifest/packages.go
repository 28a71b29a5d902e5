package manifest

import (
	"fmt"
	"strings"
)

// PackageExport is a package prefix a unit exports or hides. Prefix is in
// resource form ("org/foo/"); Recursive extends the match to subpackages.
type PackageExport struct {
	Prefix    string
	Recursive bool
}

// Matches reports whether the resource package pkg (e.g. "org/foo/bar/")
// falls under the export.
func (p PackageExport) Matches(pkg string) bool {
	if p.Recursive {
		return strings.HasPrefix(pkg, p.Prefix)
	}
	return pkg == p.Prefix
}

// String renders the export in descriptor syntax.
func (p PackageExport) String() string {
	name := strings.ReplaceAll(strings.TrimSuffix(p.Prefix, "/"), "/", ".")
	if p.Recursive {
		return name + ".**"
	}
	return name + ".*"
}

// ParsePackagePattern parses "org.foo.*" (that package only), "org.foo.**"
// (recursive) or a bare "org.foo" (that package only).
func ParsePackagePattern(s string) (PackageExport, error) {
	s = strings.TrimSpace(s)
	recursive := false
	switch {
	case strings.HasSuffix(s, ".**"):
		recursive = true
		s = strings.TrimSuffix(s, ".**")
	case strings.HasSuffix(s, ".*"):
		s = strings.TrimSuffix(s, ".*")
	}
	if s == "" || strings.ContainsAny(s, "*/ ") || strings.Contains(s, "..") ||
		strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return PackageExport{}, fmt.Errorf("invalid package pattern %q", s)
	}
	return PackageExport{
		Prefix:    strings.ReplaceAll(s, ".", "/") + "/",
		Recursive: recursive,
	}, nil
}

// ParsePackagePatterns parses a list of package patterns.
func ParsePackagePatterns(values []string) ([]PackageExport, error) {
	out := make([]PackageExport, 0, len(values))
	for _, v := range values {
		p, err := ParsePackagePattern(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ResourcePackage returns the package of a resource path in prefix form:
// "org/foo/Bar.class" → "org/foo/". Resources in the default package map to "".
func ResourcePackage(resource string) string {
	resource = strings.TrimPrefix(resource, "/")
	i := strings.LastIndexByte(resource, '/')
	if i < 0 {
		return ""
	}
	return resource[:i+1]
}
