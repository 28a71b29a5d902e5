// Package cli defines the Cobra command tree for the unitcore CLI. Each file
// in this package registers one or a few related commands with the root
// command. Commands delegate to the host and the core packages and only
// handle flag parsing and output formatting.
package cli
