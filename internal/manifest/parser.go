package manifest

import (
	"fmt"
	"os"

	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/agentx-labs/unitcore/internal/schema"
	"go.yaml.in/yaml/v3"
)

// DescriptorFile is the conventional descriptor file name inside a unit directory.
const DescriptorFile = "unit.yaml"

// ParseFile reads a descriptor file, validates it against the unit schema
// and returns the decoded descriptor.
func ParseFile(path string) (*Descriptor, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse validates and decodes descriptor bytes. source names the document
// in error messages.
func Parse(data []byte, source string) (*Descriptor, error) {
	if err := schema.Check(schema.Unit, data); err != nil {
		return nil, fmt.Errorf("validating descriptor %s: %w", source, err)
	}

	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor %s: %w", source, err)
	}

	// Surface malformed dependency or package syntax at load time.
	if _, err := d.Deps(); err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", source, err)
	}
	if _, err := d.Exports(); err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", source, err)
	}
	if _, err := d.Hidden(); err != nil {
		return nil, fmt.Errorf("descriptor %s: %w", source, err)
	}
	if d.Spec != "" {
		if _, err := dependency.ParseSpecVersion(d.Spec); err != nil {
			return nil, fmt.Errorf("descriptor %s: %w", source, err)
		}
	}

	return &d, nil
}

// Deps returns every declared dependency as typed values.
func (d *Descriptor) Deps() ([]dependency.Dependency, error) {
	var all []dependency.Dependency

	units, err := dependency.ParseAll(dependency.KindUnit, d.Dependencies.Units)
	if err != nil {
		return nil, err
	}
	all = append(all, units...)

	for _, group := range []struct {
		rel    dependency.Relation
		values []string
	}{
		{dependency.Requires, d.Dependencies.Requires},
		{dependency.Needs, d.Dependencies.Needs},
		{dependency.Recommends, d.Dependencies.Recommends},
	} {
		tokens, err := dependency.ParseTokens(group.rel, group.values)
		if err != nil {
			return nil, err
		}
		all = append(all, tokens...)
	}

	pkgs, err := dependency.ParseAll(dependency.KindPackage, d.Dependencies.Packages)
	if err != nil {
		return nil, err
	}
	all = append(all, pkgs...)

	platform, err := dependency.ParseAll(dependency.KindPlatform, d.Dependencies.Platform)
	if err != nil {
		return nil, err
	}
	return append(all, platform...), nil
}

// Exports returns the declared public packages. It returns nil when the
// descriptor exports everything; check ExportAll to tell that apart from an
// explicit empty list.
func (d *Descriptor) Exports() ([]PackageExport, error) {
	if d.ExportAll {
		return nil, nil
	}
	return ParsePackagePatterns(d.PublicPackages)
}

// Hidden returns the packages the unit hides from itself and its dependents.
func (d *Descriptor) Hidden() ([]PackageExport, error) {
	return ParsePackagePatterns(d.HiddenPackages)
}

// readFile reads the contents of a file at the given path.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return data, nil
}
