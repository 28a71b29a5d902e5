// Package unit models extension units and provides Graph, an in-memory unit
// manager.
//
// A Graph owns the live set of units and a single read/write mutex guarding
// it. Queries run inside ReadAccess and mutations inside WriteAccess; the
// mutator methods themselves never lock. Property changes made during write
// access are queued and delivered to subscribers once the lock is released,
// so a subscriber may itself request write access.
package unit
