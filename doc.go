// Package authcore is the authentication and session-lifecycle core: HMAC-signed
// bearer tokens with a self-verifying anti-replay id, revocable Redis sessions
// layered on top of them, retry-counter lockout, and single-use reset tokens
// for password reset and email change.
//
// Build an [Engine] with [New]:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithPrincipalStore(store).
//		WithNotifier(mailer).
//		Build(ctx)
//
// Engine methods are safe for concurrent use after Build.
//
// # Architecture boundaries
//
// authcore owns the login, validation and reset flows. Principal persistence
// and notification delivery are consumed through [PrincipalStore] and
// [Notifier]; HTTP handling lives in the middleware package.
//
// # Failure model
//
// Validate fails closed: a Redis error rejects the token. Lockout counters are
// read-modify-write on the principal record without locking, so concurrent
// failed logins can undercount.
package authcore
