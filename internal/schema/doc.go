// Package schema validates the YAML documents UnitCore reads (unit
// descriptors, transformation rule sources and status records) against
// JSON schemas embedded in the binary.
package schema
