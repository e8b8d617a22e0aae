// Package httpapi exposes an otpgate Engine as a JSON API on gin.
//
// Every route lives under /v1. Codes and reset tokens never appear in a
// response body; they only travel through the engine's Deliverer. The
// password reset request route answers 202 with the same body whether or not
// the email belongs to an account.
package httpapi
