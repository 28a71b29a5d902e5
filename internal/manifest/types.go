package manifest

import (
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// Module formats.
const (
	FormatModern = "modern"
	FormatLegacy = "legacy"
)

// Descriptor represents an extension unit descriptor.
type Descriptor struct {
	ID             string       `yaml:"id"`
	Major          *int         `yaml:"major,omitempty"`
	Spec           string       `yaml:"spec,omitempty"`
	Impl           string       `yaml:"impl,omitempty"`
	Format         string       `yaml:"format,omitempty"`
	Dependencies   Dependencies `yaml:"dependencies,omitempty"`
	Provides       []string     `yaml:"provides,omitempty"`
	PublicPackages []string     `yaml:"public_packages,omitempty"`
	Friends        []string     `yaml:"friends,omitempty"`
	HiddenPackages []string     `yaml:"hidden_packages,omitempty"`
	FragmentHost   string       `yaml:"fragment_host,omitempty"`
	Classpath      []string     `yaml:"classpath,omitempty"`
	StartLevel     *int         `yaml:"start_level,omitempty"`

	// ExportAll is set when the descriptor does not declare public_packages
	// at all. An explicit empty list exports nothing.
	ExportAll bool `yaml:"-"`
}

// Dependencies groups the declared dependencies by kind, in manifest syntax.
type Dependencies struct {
	Units      []string `yaml:"units,omitempty"`
	Requires   []string `yaml:"requires,omitempty"`
	Needs      []string `yaml:"needs,omitempty"`
	Recommends []string `yaml:"recommends,omitempty"`
	Packages   []string `yaml:"packages,omitempty"`
	Platform   []string `yaml:"platform,omitempty"`
}

// UnmarshalYAML decodes the descriptor and records whether public_packages
// was present.
func (d *Descriptor) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}

	type plain Descriptor
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = Descriptor(p)

	d.ExportAll = true
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "public_packages" {
			d.ExportAll = false
			break
		}
	}
	return nil
}

// MajorRelease returns the declared major release, or -1 when absent.
func (d *Descriptor) MajorRelease() int {
	if d.Major == nil {
		return -1
	}
	return *d.Major
}

// Legacy reports whether the unit uses the legacy module format.
func (d *Descriptor) Legacy() bool {
	return d.Format == FormatLegacy
}

// Roots returns the resource roots of a unit whose descriptor lives at
// origin: the origin itself followed by the declared classpath extensions,
// resolved relative to the origin's directory. Without an origin only
// absolute extensions remain.
func (d *Descriptor) Roots(origin string) []string {
	roots := make([]string, 0, 1+len(d.Classpath))
	if origin != "" {
		roots = append(roots, origin)
	}
	base := filepath.Dir(origin)
	for _, cp := range d.Classpath {
		switch {
		case filepath.IsAbs(cp):
			roots = append(roots, cp)
		case origin != "":
			roots = append(roots, filepath.Join(base, cp))
		}
	}
	return roots
}
