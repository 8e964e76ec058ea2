// Package fleet probes every registered endpoint on a fixed cadence.
//
// A cycle probes all endpoints concurrently and completes only once every
// probe has settled. The resulting Snapshot always has one outcome per
// endpoint, in registry order; a probe that fails in an unexpected way still
// contributes an outcome with status error. Snapshots are published
// atomically, so readers see either the previous cycle or the new one, never
// a mix.
package fleet
