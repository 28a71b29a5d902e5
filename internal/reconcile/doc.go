// Package reconcile keeps a folder of per-unit status records and the live
// unit graph in agreement.
//
// At startup the records (or a binary cache of them) are read and the units
// they name are created and enabled. Afterwards property changes in the
// graph are written back to the records, and edits other processes make to
// the records are noticed through file system notifications, debounced, and
// applied to the graph in a single pass under the graph's write lock. Writes
// the reconciler makes itself carry a correlation token so their
// notifications are recognised and ignored.
package reconcile
