// Package limiters holds the policies that gate authentication requests.
//
//   - [LockoutPolicy] evaluates the retry counter carried on a principal record.
//     It is pure: callers read and persist the counter.
//   - [RequestLimiter] throttles password-reset and email-change requests with
//     Redis fixed windows from internal/rate.
//
// Limiters count and classify. The engine decides the consequences.
package limiters
