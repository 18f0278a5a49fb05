// Package diff implements the docsync reconciliation engine.
//
// The engine turns an existing remote block list and a desired block list
// into a minimal edit script, then replays that script against a remote
// block-tree API.
//
// Pipeline:
// 1. ComputeSignature reduces every block to a comparable fingerprint
// 2. LCSMatch aligns the two signature sequences (anchors)
// 3. Planner walks the regions between anchors and emits DiffOps
// 4. Executor applies the ops in order, positioning inserts after a cursor
//
// Signature computation, matching and planning are pure and safe to call
// from any goroutine. Execution is strictly sequential within one call:
// every insertion is positioned relative to the outcome of the previous op.
//
// CRITICAL PATTERNS:
//
// Deterministic planning:
// Equal inputs always produce identical op sequences. The LCS backtrack
// favours stepping back on the existing sequence when both predecessor cells
// tie, and the 0.3 match-ratio fallback is fixed by default.
//
// Fail-fast execution:
// Remote errors propagate unchanged and abort the remaining ops. No partial
// UpdateResult is returned; callers re-fetch and re-plan.
package diff
