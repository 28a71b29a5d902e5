// Package platform hides the permission differences between Unix and
// Windows for the files UnitCore writes.
package platform
