package transform

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/agentx-labs/unitcore/internal/schema"
	"go.yaml.in/yaml/v3"
)

// SchemaVersion is the only rule source version this engine understands.
const SchemaVersion = "1.0"

type document struct {
	Version string     `yaml:"version"`
	Groups  []groupDoc `yaml:"groups"`
}

type groupDoc struct {
	Description string         `yaml:"description"`
	Exclusions  []exclusionDoc `yaml:"exclusions"`
	Rules       []ruleDoc      `yaml:"rules"`
}

type exclusionDoc struct {
	ID     string `yaml:"id"`
	Prefix bool   `yaml:"prefix"`
}

type ruleDoc struct {
	Trigger triggerDoc   `yaml:"trigger"`
	Results []patternDoc `yaml:"results"`
}

type triggerDoc struct {
	Type       string `yaml:"type"`
	patternDoc `yaml:",inline"`
}

type patternDoc struct {
	Unit    string `yaml:"unit,omitempty"`
	Token   string `yaml:"token,omitempty"`
	Package string `yaml:"package,omitempty"`
}

// Load reads rule sources in order and returns an engine holding all of
// their groups. Each path is either a rule file or a directory whose *.yaml
// and *.yml files are read in lexical order.
func Load(logger *slog.Logger, paths ...string) (*Engine, error) {
	var groups []Group
	for _, p := range paths {
		files, err := expand(p)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			g, err := LoadFile(f)
			if err != nil {
				return nil, err
			}
			groups = append(groups, g...)
		}
	}
	return New(groups, logger), nil
}

// LoadOrEmpty is Load for callers that tolerate a broken rule source: the
// error is logged and an engine without rules is returned.
func LoadOrEmpty(logger *slog.Logger, paths ...string) *Engine {
	e, err := Load(logger, paths...)
	if err != nil {
		if logger != nil {
			logger.Warn("dependency transformation rules unavailable, continuing without rules", "error", err)
		}
		return New(nil, logger)
	}
	return e
}

// LoadFile parses a single rule file.
func LoadFile(path string) ([]Group, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Err: err}
	}
	return Parse(data, path)
}

// Parse decodes one rule document. source names the document in errors.
func Parse(data []byte, source string) ([]Group, error) {
	var header struct {
		Version string `yaml:"version"`
	}
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, &ConfigurationError{Source: source, Err: err}
	}
	if header.Version != SchemaVersion {
		return nil, configErr(source, "unsupported rule schema version %q (want %q)", header.Version, SchemaVersion)
	}

	if err := schema.Check(schema.Rules, data); err != nil {
		return nil, &ConfigurationError{Source: source, Err: err}
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Source: source, Err: err}
	}

	groups := make([]Group, 0, len(doc.Groups))
	for gi, gd := range doc.Groups {
		g := Group{Description: strings.TrimSpace(gd.Description)}
		for _, ed := range gd.Exclusions {
			g.Exclusions = append(g.Exclusions, parseExclusion(ed))
		}
		for ri, rd := range gd.Rules {
			r, err := parseRule(rd)
			if err != nil {
				return nil, configErr(source, "group %d rule %d: %w", gi+1, ri+1, err)
			}
			g.Rules = append(g.Rules, r)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func parseExclusion(ed exclusionDoc) Exclusion {
	id := strings.TrimSpace(ed.ID)
	if strings.HasSuffix(id, ".*") {
		return Exclusion{ID: strings.TrimSuffix(id, ".*"), Prefix: true}
	}
	return Exclusion{ID: id, Prefix: ed.Prefix}
}

func parseRule(rd ruleDoc) (Rule, error) {
	pattern, err := parsePattern(rd.Trigger.patternDoc)
	if err != nil {
		return Rule{}, fmt.Errorf("trigger: %w", err)
	}

	typ := TriggerType(rd.Trigger.Type)
	switch typ {
	case TriggerCancel:
	case TriggerOlder:
		if pattern.Kind == dependency.KindToken {
			return Rule{}, errors.New("trigger: older does not apply to token dependencies")
		}
	default:
		return Rule{}, fmt.Errorf("trigger: unknown type %q", rd.Trigger.Type)
	}
	if pattern.SampleClass() != "" {
		return Rule{}, fmt.Errorf("trigger: package pattern %q must not name a sample class", pattern.Name)
	}

	r := Rule{Trigger: Trigger{Type: typ, Pattern: pattern}}
	for i, pd := range rd.Results {
		res, err := parsePattern(pd)
		if err != nil {
			return Rule{}, fmt.Errorf("result %d: %w", i+1, err)
		}
		r.Results = append(r.Results, res)
	}
	if len(r.Results) == 0 {
		return Rule{}, errors.New("rule has no results")
	}
	return r, nil
}

func parsePattern(pd patternDoc) (dependency.Dependency, error) {
	switch {
	case pd.Unit != "":
		return dependency.Parse(dependency.KindUnit, pd.Unit)
	case pd.Package != "":
		return dependency.Parse(dependency.KindPackage, pd.Package)
	case pd.Token != "":
		return parseTokenPattern(pd.Token)
	}
	return dependency.Dependency{}, errors.New("pattern names no dependency")
}

// parseTokenPattern accepts "name" or "<relation>: name".
func parseTokenPattern(s string) (dependency.Dependency, error) {
	rel := dependency.Requires
	if i := strings.IndexByte(s, ':'); i >= 0 {
		switch strings.TrimSpace(s[:i]) {
		case "requires":
		case "needs":
			rel = dependency.Needs
		case "recommends":
			rel = dependency.Recommends
		default:
			return dependency.Dependency{}, fmt.Errorf("unknown token relation in %q", s)
		}
		s = s[i+1:]
	}
	return dependency.ParseToken(rel, s)
}

// expand returns the rule files named by path.
func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Err: err}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, &ConfigurationError{Source: path, Err: err}
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
