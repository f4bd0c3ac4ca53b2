// Package config handles YAML configuration loading with environment
// variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. One config schema serves both binaries: the gateway reads
// the bus and gateway sections, the controller reads the bus and controller
// sections.
package config
