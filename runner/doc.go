// Package runner executes the TestCase×Driver matrix.
//
// The Orchestrator computes the pairing, dispatches each pair to the
// Executor under a bounded worker pool, compares completed output against
// the golden transcript and classifies every outcome into a Status. Each
// pair writes exactly one result into its precomputed dense matrix slot,
// so results are deterministic regardless of scheduling order.
package runner
