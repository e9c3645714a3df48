// Package staleness decides whether a task's action has to run.
//
// The default policy compares modification times: a task is stale when an
// output is missing, when an output is older than an input, or when an
// upstream task ran in the same invocation. It over-approximates on purpose;
// actions are idempotent, so a needless rerun only costs time.
//
// The checksum policy replaces the time comparison with content fingerprints
// recorded after each successful run, which tolerates touched files, copies
// and clock skew at the price of hashing every declared artifact.
package staleness
