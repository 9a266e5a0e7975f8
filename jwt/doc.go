// Package jwt issues and verifies HMAC-signed access and refresh tokens.
//
// Every claim set carries a deterministic anti-replay identifier (jti) derived
// from the subject and the issued-at instant with the signing secret. The jti is
// recomputed during [Manager.Decode] and compared in constant time, so a claim
// set whose subject or issued-at no longer agrees with its jti is rejected even
// when the signature is valid.
//
// # Architecture boundaries
//
// This package is a leaf. It does NOT touch Redis, principals, or sessions; the
// session package derives session identifiers from the claims produced here.
package jwt
