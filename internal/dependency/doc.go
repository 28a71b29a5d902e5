// Package dependency models the dependencies an extension unit declares:
// classic unit dependencies, capability tokens, package dependencies and
// platform requirements. Values are immutable and comparable, so sets of
// them can be compared structurally and used as map keys.
package dependency
