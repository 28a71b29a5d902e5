// Package host boots a unit system from configuration: transformation
// rules, the unit graph, the visibility resolver and the status record
// reconciler, wired in that order.
package host
