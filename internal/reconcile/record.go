package reconcile

import (
	"bytes"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/agentx-labs/unitcore/internal/schema"
)

// Record is the persisted status of one unit. Enabled is omitted for
// autoload and eager units, whose enablement is derived.
type Record struct {
	Name       string `yaml:"name" msgpack:"name"`
	Jar        string `yaml:"jar" msgpack:"jar"`
	Enabled    *bool  `yaml:"enabled,omitempty" msgpack:"enabled,omitempty"`
	Autoload   bool   `yaml:"autoload,omitempty" msgpack:"autoload,omitempty"`
	Eager      bool   `yaml:"eager,omitempty" msgpack:"eager,omitempty"`
	Reloadable bool   `yaml:"reloadable,omitempty" msgpack:"reloadable,omitempty"`
	StartLevel int    `yaml:"startlevel,omitempty" msgpack:"startlevel,omitempty"`
}

// FileName returns the record file name for a unit id. Dashes are doubled
// and dots become single dashes, so distinct ids never share a file.
func FileName(id string) string {
	return strings.ReplaceAll(strings.ReplaceAll(id, "-", "--"), ".", "-") + ".yaml"
}

// UnitID reverses FileName. It reports false for names without the
// record suffix.
func UnitID(name string) (string, bool) {
	base, ok := strings.CutSuffix(name, ".yaml")
	if !ok || base == "" {
		return "", false
	}
	var b strings.Builder
	for i := 0; i < len(base); i++ {
		switch {
		case base[i] != '-':
			b.WriteByte(base[i])
		case i+1 < len(base) && base[i+1] == '-':
			b.WriteByte('-')
			i++
		default:
			b.WriteByte('.')
		}
	}
	return b.String(), true
}

// Derived reports whether the record's enablement is derived rather than
// chosen.
func (r *Record) Derived() bool {
	return r.Autoload || r.Eager
}

// WantsEnabled reports whether the record asks for the unit to be enabled.
func (r *Record) WantsEnabled() bool {
	return !r.Derived() && r.Enabled != nil && *r.Enabled
}

// Equal compares the persisted properties, ignoring enablement of derived
// records and treating an absent enabled flag as false.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Name != o.Name || r.Jar != o.Jar || r.Autoload != o.Autoload || r.Eager != o.Eager ||
		r.Reloadable != o.Reloadable || r.StartLevel != o.StartLevel {
		return false
	}
	return r.Derived() || r.WantsEnabled() == o.WantsEnabled()
}

// Marshal renders the record as YAML.
func (r *Record) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", r.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", r.Name, err)
	}
	return buf.Bytes(), nil
}

// ParseRecord validates and decodes a record document.
func ParseRecord(data []byte) (*Record, error) {
	if err := schema.Check(schema.Status, data); err != nil {
		return nil, err
	}
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing record: %w", err)
	}
	return &r, nil
}
