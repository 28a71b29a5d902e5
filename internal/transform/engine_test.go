package transform

import (
	"testing"

	"github.com/agentx-labs/unitcore/internal/dependency"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func unitDep(t *testing.T, s string) dependency.Dependency {
	t.Helper()
	d, err := dependency.Parse(dependency.KindUnit, s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return d
}

func cancelGroup(t *testing.T) Group {
	t.Helper()
	return Group{
		Description: "X replaced by Y",
		Exclusions:  []Exclusion{{ID: "vendor", Prefix: true}},
		Rules: []Rule{{
			Trigger: Trigger{Type: TriggerCancel, Pattern: unitDep(t, "x")},
			Results: []dependency.Dependency{unitDep(t, "y > 2.0")},
		}},
	}
}

func TestRefine_CancelScenario(t *testing.T) {
	e := New([]Group{cancelGroup(t)}, nil)
	deps := []dependency.Dependency{unitDep(t, "x")}

	excluded := e.Refine("vendor.tool", deps)
	if !excluded.Empty() || len(excluded.Messages) != 0 {
		t.Errorf("excluded unit was refined: %+v", excluded)
	}

	got := e.Refine("acme.tool", deps)
	want := Report{
		Added:    []dependency.Dependency{unitDep(t, "y > 2.0")},
		Removed:  []dependency.Dependency{unitDep(t, "x")},
		Messages: []string{"X replaced by Y: added y > 2.0; removed x"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Refine() mismatch (-want +got):\n%s", diff)
	}
}

func TestRefine_ExclusionPrefixIsDotDelimited(t *testing.T) {
	e := New([]Group{cancelGroup(t)}, nil)
	got := e.Refine("vendortool", []dependency.Dependency{unitDep(t, "x")})
	if got.Empty() {
		t.Error("vendortool is not a descendant of vendor and must be refined")
	}
}

func TestRefine_EmptyRuleSet(t *testing.T) {
	e := New(nil, nil)
	deps := []dependency.Dependency{unitDep(t, "x"), dependency.Token(dependency.Requires, "cap.a")}
	got := e.Refine("any.unit", deps)
	if diff := cmp.Diff(Report{}, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Refine() with no rules (-want +got):\n%s", diff)
	}
}

func TestRefine_Idempotent(t *testing.T) {
	groups := []Group{
		cancelGroup(t),
		{Rules: []Rule{{
			Trigger: Trigger{Type: TriggerOlder, Pattern: unitDep(t, "core/2 > 1.0")},
			Results: []dependency.Dependency{
				unitDep(t, "core/2 > 1.0"),
				dependency.Token(dependency.Requires, "cap.core"),
			},
		}}},
	}
	e := New(groups, nil)

	deps := []dependency.Dependency{unitDep(t, "x"), unitDep(t, "core/1 > 3.0")}
	first := e.Refine("acme.app", deps)
	if first.Empty() {
		t.Fatal("first refinement changed nothing")
	}
	refined := first.Apply(deps)

	second := e.Refine("acme.app", refined)
	if !second.Empty() || len(second.Messages) != 0 {
		t.Errorf("second refinement not empty: %+v", second)
	}
}

func TestRefine_ImplPinnedNeverUpgraded(t *testing.T) {
	e := New([]Group{{Rules: []Rule{
		{
			Trigger: Trigger{Type: TriggerOlder, Pattern: unitDep(t, "core/3 > 5.0")},
			Results: []dependency.Dependency{unitDep(t, "core/3 > 5.0")},
		},
	}}}, nil)

	pinned := unitDep(t, "core = build-42")
	got := e.Refine("acme.app", []dependency.Dependency{pinned})
	if !got.Empty() {
		t.Errorf("impl-pinned dependency was changed: %+v", got)
	}
}

func TestRefine_UpsertKeepsNewerExisting(t *testing.T) {
	e := New([]Group{{Rules: []Rule{{
		Trigger: Trigger{Type: TriggerCancel, Pattern: unitDep(t, "old")},
		Results: []dependency.Dependency{unitDep(t, "y > 1.0")},
	}}}}, nil)

	deps := []dependency.Dependency{unitDep(t, "old"), unitDep(t, "y > 3.0")}
	got := e.Refine("app", deps)
	want := Report{
		Removed:  []dependency.Dependency{unitDep(t, "old")},
		Messages: []string{"transformation group 1: removed old"},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Refine() mismatch (-want +got):\n%s", diff)
	}
}

func TestRefine_UpsertReplacesOlderInPlace(t *testing.T) {
	e := New([]Group{{Rules: []Rule{{
		Trigger: Trigger{Type: TriggerCancel, Pattern: unitDep(t, "old")},
		Results: []dependency.Dependency{unitDep(t, "y/1 > 2.0")},
	}}}}, nil)

	deps := []dependency.Dependency{unitDep(t, "old"), unitDep(t, "y/1 > 1.0")}
	refined := e.Refine("app", deps).Apply(deps)

	count := 0
	for _, d := range refined {
		if d.Kind == dependency.KindUnit && d.Target() == "y" {
			count++
			if d.Version != "2.0" {
				t.Errorf("y not upgraded: %v", d)
			}
		}
	}
	if count != 1 {
		t.Errorf("found %d dependencies on y, want 1: %v", count, refined)
	}
}

func TestRefine_TriggersSeeOriginalSet(t *testing.T) {
	// The first group cancels a and adds b; the second group triggers on b.
	// b was not in the original set, so the second group must not fire.
	e := New([]Group{
		{Rules: []Rule{{
			Trigger: Trigger{Type: TriggerCancel, Pattern: unitDep(t, "a")},
			Results: []dependency.Dependency{unitDep(t, "b")},
		}}},
		{Rules: []Rule{{
			Trigger: Trigger{Type: TriggerCancel, Pattern: unitDep(t, "b")},
			Results: []dependency.Dependency{unitDep(t, "c")},
		}}},
	}, nil)

	got := e.Refine("app", []dependency.Dependency{unitDep(t, "a")})
	refined := dependency.NewSet(got.Apply([]dependency.Dependency{unitDep(t, "a")})...)
	if !refined.Contains(unitDep(t, "b")) || refined.Contains(unitDep(t, "c")) {
		t.Errorf("refined set = %v, want only b", refined)
	}
	if len(got.Messages) != 1 {
		t.Errorf("Messages = %v, want one message", got.Messages)
	}
}

func TestRefine_TokenResultsAddIfAbsent(t *testing.T) {
	e := New([]Group{{Rules: []Rule{{
		Trigger: Trigger{Type: TriggerCancel, Pattern: unitDep(t, "a")},
		Results: []dependency.Dependency{dependency.Token(dependency.Requires, "cap.x")},
	}}}}, nil)

	existing := dependency.Token(dependency.Needs, "cap.x")
	got := e.Refine("app", []dependency.Dependency{unitDep(t, "a"), existing})
	if len(got.Added) != 0 {
		t.Errorf("token added although one with the same name exists: %v", got.Added)
	}
}

func TestRefine_PlatformIgnored(t *testing.T) {
	java := dependency.Platform("Java", dependency.CompareSpec, "17")
	e := New([]Group{cancelGroup(t)}, nil)
	got := e.Refine("app", []dependency.Dependency{java})
	if !got.Empty() {
		t.Errorf("platform dependency affected refinement: %+v", got)
	}
}

func TestRefine_NetNoChangeHasNoMessages(t *testing.T) {
	// The first group drops b, the second restores it. Both groups change
	// the running set but the net difference is empty.
	e := New([]Group{
		{Rules: []Rule{{
			Trigger: Trigger{Type: TriggerCancel, Pattern: unitDep(t, "b")},
			Results: []dependency.Dependency{unitDep(t, "c")},
		}}},
		{Rules: []Rule{{
			Trigger: Trigger{Type: TriggerCancel, Pattern: unitDep(t, "c")},
			Results: []dependency.Dependency{unitDep(t, "b"), unitDep(t, "c")},
		}}},
	}, nil)

	deps := []dependency.Dependency{unitDep(t, "b"), unitDep(t, "c")}
	got := e.Refine("app", deps)
	if !got.Empty() || len(got.Messages) != 0 {
		t.Errorf("Refine() = %+v, want empty report", got)
	}
}
