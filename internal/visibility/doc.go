// Package visibility computes the resources each enabled unit may see: its
// effective classpath, and whether a resource request may be delegated to a
// parent loader.
//
// A Resolver only reads the unit graph. Callers hold the graph's read lock
// while querying; the resolver's own memo tables are guarded separately so
// concurrent readers are safe.
package visibility
