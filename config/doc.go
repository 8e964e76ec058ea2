// Package config handles loading and parsing of configuration from YAML files,
// environment variables and command line flags. It defines the application
// configuration structure including server settings, probe and fleet cadence,
// proxy limits and the optional push feed, and validates it before use.
package config
