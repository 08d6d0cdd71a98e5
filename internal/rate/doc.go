// Package rate provides the admission-control primitives: a Redis-backed
// fixed-window limiter keyed by (identity, action) and an in-process
// token-bucket fallback for relaxed-mode operation during Redis outages.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on the first hit. Keys
// are rl:<action>:<identity>. Denials report the remaining window TTL as
// the retry hint.
//
// # What this package must NOT do
//
//   - Decide strict-vs-relaxed policy (the Engine routes ErrRedisUnavailable).
//   - Be imported outside this module.
package rate
