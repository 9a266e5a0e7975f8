// Package audit buffers security events and relays them to a pluggable sink.
//
// The engine decides which events to emit. This package only stamps, queues
// and delivers them: to a channel, a JSON-lines writer, or a zerolog logger.
package audit
