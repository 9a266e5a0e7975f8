// Package middleware adapts the engine to net/http.
//
// [RequestContext] attaches the client IP and a request id to the context.
// [Guard] validates the access token carried in X-Token-Auth or an
// Authorization bearer header and stores the [authcore.AuthResult] for
// downstream handlers. All decisions are delegated to Engine.Validate.
package middleware
