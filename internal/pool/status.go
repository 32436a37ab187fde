// Package pool manages the three shared resources of the pipeline: store
// connections, the embedding model, and the rate-limited LLM client. Pools
// initialize and close idempotently and expose point-in-time status
// snapshots.
package pool

// Status is a point-in-time snapshot of one pool.
type Status struct {
	Initialized bool `json:"initialized"`
	Ready       bool `json:"ready"`
	InUse       int  `json:"in_use"`
	Available   int  `json:"available"`
}
