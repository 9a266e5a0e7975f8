// Package session binds token lifecycles to revocable, Redis-backed session records.
//
// # Keys
//
// Each session is a JSON record stored under "<prefix>:<sessionID>" with a
// sliding TTL. Every principal also owns a hash "<prefix>:u:<principalID>"
// mapping session id to access token, used for listing and bulk revocation.
//
// Writes to the record and to the index are pipelined but not transactional.
// A dangling index entry whose record has already expired is reported as "no
// session" and is dropped by [Manager.ListSessions] and [Manager.CreateSession].
//
// Refresh tokens have no record. Removing a session writes "<prefix>:rv:<sessionID>"
// and wiping a principal writes an issued-at cutoff to "<prefix>:rv:u:<principalID>";
// [Manager.CheckRefresh] consults both.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Manager]
// (codec + store composition). It does NOT look up principals, verify passwords
// or apply lockout policy; those belong to the Engine.
package session
