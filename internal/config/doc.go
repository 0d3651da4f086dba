// Package config loads chatstore configuration from YAML.
//
// Environment variables in ${VAR_NAME} form are expanded before
// parsing, duration fields are given as Go duration strings
// ("100ms", "2s"), and unset fields fall back to defaults that match
// the storage layer's built-in tuning.
package config
