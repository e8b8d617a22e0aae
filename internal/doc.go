// Package internal contains helpers that are private to otpgate: one-time code
// generation, salted secret digests and password reset token encoding.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: Redis cooldown keys (password reset request governor)
//   - rate: per-IP fixed-window request throttle
//   - serverconfig: environment configuration for cmd/otpgate-server
//   - stores: Redis-backed pending verification, signup staging and reset records
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpgate API.
//   - Persist or log plaintext secrets.
package internal
