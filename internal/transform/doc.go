// Package transform rewrites obsolete or incomplete dependency declarations
// using versioned migration rules.
//
// Rules are grouped; groups run in declaration order and every rule's
// trigger is evaluated against the unit's original dependency set, so rules
// fire in parallel rather than on a running, mutated set. Results are
// applied with upsert semantics, which keeps at most one dependency per
// target. An Engine holds an immutable rule list and is safe for concurrent
// use without locking.
package transform
