// Package config manages host settings stored at ~/.unitcore/config.yaml.
// Values are read through Viper, so every key can be overridden by an
// UNITCORE_-prefixed environment variable. Resolve turns the loaded keys into
// the typed Settings the host boots from.
package config
