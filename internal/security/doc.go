// Package security derives a read-only summary of the security-relevant
// configuration of an engine. It holds no state and performs no I/O.
package security
