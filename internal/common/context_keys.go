// File: internal/common/context_keys.go
package common

const (
	// AuthorizationHeader is the header name for authorization token
	AuthorizationHeader = "Authorization"
	// AuthorizationTypeBearer is the prefix for Bearer tokens
	AuthorizationTypeBearer = "Bearer"
	// RequestIDKey is the context key for the request ID set by the logger middleware
	RequestIDKey = "requestID"
	// LoggerKey is the context key for a request-scoped *zap.Logger
	LoggerKey = "logger"
)
