package unit

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExists is returned when creating a unit whose id is taken.
	ErrExists = errors.New("unit already exists")
	// ErrFixed is returned when disabling or deleting a fixed unit.
	ErrFixed = errors.New("unit is fixed")
	// ErrInvalid is returned when operating on a unit no longer in the graph.
	ErrInvalid = errors.New("unit is not valid")
)

// InvalidError reports a unit that cannot be enabled.
type InvalidError struct {
	Unit     *Unit
	Problems []string
}

func (e *InvalidError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("unit %s cannot be enabled", e.Unit.ID())
	}
	return fmt.Sprintf("unit %s cannot be enabled: %s", e.Unit.ID(), strings.Join(e.Problems, "; "))
}

// StrandError reports a disable request that would leave enabled units
// depending on disabled ones.
type StrandError struct {
	Units []*Unit
}

func (e *StrandError) Error() string {
	ids := make([]string, len(e.Units))
	for i, u := range e.Units {
		ids[i] = u.ID()
	}
	return "disabling would strand dependents: " + strings.Join(ids, ", ")
}
