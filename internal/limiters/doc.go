// Package limiters provides Redis-backed request governors used by otpgate flows.
//
// [Cooldown] grants one action per key per window (SET NX PX) and reports the
// remaining wait to callers that arrive early. The password reset flow uses it
// to keep a single reset request per email per minute.
//
// All limiters are nil-safe: calling any method on a nil receiver allows the action.
//
// # What this package must NOT do
//
//   - Import otpgate or any sibling internal package.
//   - Decide what a denied caller observes; flows decide consequences.
package limiters
