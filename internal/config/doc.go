// Package config loads process configuration.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML
// file, an optional dotenv file, then SHELFWISE_* environment variables.
// The merged result is validated once against an embedded CUE schema;
// invalid configuration is an error for the command that loaded it.
package config
