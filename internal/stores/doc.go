// Package stores provides Redis-backed, short-lived records for the otpgate
// flows: pending verification codes, signup staging and password reset grants.
//
// # Design
//
// Each store persists a versioned, binary-encoded record with a TTL. The TTL only
// garbage-collects: every read compares the record's own expiry timestamp with
// the caller's clock. Mutations that must be atomic per key (code verification,
// reissue under cooldown, reset consumption) run in WATCH/MULTI transactions
// with bounded retry. Secret comparisons use constant-time compare.
//
// # What this package must NOT do
//
//   - Generate codes or tokens, or decide which error a caller sees.
//   - Import otpgate or any sibling internal package.
//   - Store plaintext secrets.
package stores
