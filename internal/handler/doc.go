// Package handler implements the monitor's HTTP surface: on-demand checks,
// the rewriting proxy, the endpoint listing, per-endpoint stats and the
// current fleet status.
package handler
