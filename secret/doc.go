// Package secret resolves the token signing secret.
//
// [Resolve] asks a [Provider] (normally AWS Secrets Manager) for a named secret
// and falls back to a statically configured value on any failure. The fallback
// is logged, never returned as an error.
package secret
