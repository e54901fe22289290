// Package config loads the bridge configuration from an optional YAML file
// and the environment, and validates it section by section.
package config
