// Package rate provides the per-client request throttle used in front of the
// otpgate request operations (signup, signin, password reset).
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// <prefix>:rl:<scope>:<client ip>.
//
// # What this package must NOT do
//
//   - Implement per-account policy (lockout lives in the identity store).
//   - Be imported outside the otpgate module.
package rate
