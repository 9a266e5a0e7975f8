// Package rate provides a Redis fixed-window counter.
//
// # Window semantics
//
// INCR, plus EXPIRE on the first hit of a window. The counter resets when the
// key expires; there is no sliding or token-bucket behavior.
//
// Policies built on top of the counter live in internal/limiters.
package rate
