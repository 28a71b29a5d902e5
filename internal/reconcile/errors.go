package reconcile

import (
	"errors"
	"fmt"
)

// ErrMissingJar is wrapped by a RecordError whose jar cannot be located.
var ErrMissingJar = errors.New("jar not found")

// RecordError reports a status record that could not be used. It affects
// that record only.
type RecordError struct {
	Path string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("status record %s: %v", e.Path, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// RaceError reports a record write abandoned because the file changed on
// disk and the change has not been reconciled yet.
type RaceError struct {
	ID   string
	Path string
}

func (e *RaceError) Error() string {
	return fmt.Sprintf("status record %s for %s changed on disk, write abandoned", e.Path, e.ID)
}
