package transform

import (
	"strings"

	"github.com/agentx-labs/unitcore/internal/dependency"
)

// TriggerType selects how a trigger matches an existing dependency.
type TriggerType string

const (
	// TriggerCancel matches any dependency on the target and removes it.
	TriggerCancel TriggerType = "cancel"
	// TriggerOlder matches a dependency older than the pattern and keeps it.
	TriggerOlder TriggerType = "older"
)

// Trigger is the condition part of a rule.
type Trigger struct {
	Type    TriggerType
	Pattern dependency.Dependency
}

// Rule fires its results when its trigger matches.
type Rule struct {
	Trigger Trigger
	Results []dependency.Dependency
}

// Exclusion exempts a unit id, or every dot-delimited descendant of an id
// prefix, from a group.
type Exclusion struct {
	ID     string
	Prefix bool
}

// Matches reports whether unitID is exempt.
func (e Exclusion) Matches(unitID string) bool {
	if unitID == e.ID {
		return true
	}
	return e.Prefix && strings.HasPrefix(unitID, e.ID+".")
}

// Group is an ordered list of rules sharing a set of exclusions.
type Group struct {
	Description string
	Rules       []Rule
	Exclusions  []Exclusion
}

// Excludes reports whether the group must be skipped for unitID.
func (g Group) Excludes(unitID string) bool {
	for _, e := range g.Exclusions {
		if e.Matches(unitID) {
			return true
		}
	}
	return false
}
