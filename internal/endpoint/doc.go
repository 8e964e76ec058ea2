// Package endpoint holds the static list of monitored targets.
//
// The registry is read once from a YAML file at startup and is immutable
// afterwards. When the file does not exist a built-in list is used.
package endpoint
