// Package audit moves security events off the request path.
//
// The engine hands each [Event] to a [Dispatcher], which queues it and feeds
// one [Sink] from a background goroutine. Secret-looking metadata keys are
// stripped before queueing. Sinks cover stdout JSON lines, a *log.Logger,
// a channel for tests, and fan-out.
package audit
