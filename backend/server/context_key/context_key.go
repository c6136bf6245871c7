// Package contextKey defines the keys under which the JWT middleware
// stashes request-scoped values.
package contextKey

type ContextKey string

const (
	// UserIDKey holds the authenticated user's id (hex string) extracted
	// from a valid JWT.
	UserIDKey ContextKey = "userID"
	// JwtErrorKey holds the parse/validation error when the presented JWT
	// was rejected.
	JwtErrorKey ContextKey = "jwtError"
)
