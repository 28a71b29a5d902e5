// Package manifest parses extension unit descriptors (unit.yaml). A
// descriptor declares the unit's identity and versions, its dependencies,
// the capabilities it provides and the package visibility constraints it
// imposes. Descriptors are validated against the embedded unit schema before
// they are decoded.
package manifest
