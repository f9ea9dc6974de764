// Package constants provides centralized constant definitions for the chatrelay service.
// This eliminates magic numbers and strings throughout the codebase.
package constants

import "time"

// Destination prefixes and templates for the frame protocol
const (
	// UserTopicPrefix is the prefix of user-owned topics. Subscriptions to
	// destinations under this prefix are gated on the authenticated user id.
	UserTopicPrefix = "/topic/user/"

	// UserMessagesTopic is the private per-user delivery topic template.
	UserMessagesTopic = "/topic/user/{userId}/messages"

	// ExceptionQueueTemplate is the per-connection side channel for
	// application-level errors that must not close the connection.
	ExceptionQueueTemplate = "/queue/session/{connectionId}/exception"

	// RefreshDestination is the application destination for mid-session
	// credential refresh.
	RefreshDestination = "/app/auth/refresh"

	// PingDestination and PongQueueTemplate implement the application-level
	// echo used by clients to probe liveness of their session.
	PingDestination   = "/app/ping"
	PongQueueTemplate = "/queue/session/{connectionId}/pong"
)

// Connection lifecycle timing
const (
	// HeartbeatInterval is the transport ping period. The expiry sweep runs
	// on the same period, so a session never outlives its expiry by more
	// than one heartbeat.
	HeartbeatInterval = 25 * time.Second

	// PongWait is the time allowed to read the next pong from the peer.
	// Must be greater than HeartbeatInterval.
	PongWait = 30 * time.Second

	// WriteWait is the time allowed to write a frame to the peer.
	WriteWait = 10 * time.Second
)

// Sizes and Limits
const (
	DefaultMaxFrameSize    = 65536 // Maximum inbound WebSocket frame size in bytes
	SendBufferSize         = 256   // Per-connection outbound frame buffer
	DefaultMaxConnsPerUser = 10    // Concurrent WebSocket connections per user
	DefaultRateLimit       = 100   // Inbound send frames per minute per user
	RelayChannelBuffer     = 64    // Buffered relay events per subscriber
	SSEEventBuffer         = 16    // Buffered events per SSE subscriber
)

// Alternate transport timeouts
const (
	DefaultLongPollTimeout = 30 * time.Second // Long-poll hold before resolving empty
	DefaultSSETimeout      = 5 * time.Minute  // SSE stream lifetime
	MaxHoldTimeout         = 10 * time.Minute // Cap for client-supplied timeout query values
)

// HTTP Server Timeouts (for standalone server mode)
const (
	HTTPReadTimeout  = 15 * time.Second  // Maximum time to read the entire request
	HTTPWriteTimeout = 15 * time.Minute  // Maximum time to write the response (must exceed held SSE streams)
	HTTPIdleTimeout  = 120 * time.Second // Maximum time to keep idle connections alive
)

// Timeouts for various operations
const (
	DefaultContextTimeout = 10 * time.Second // Standard external lookups (membership, relay)
	ShortTimeout          = 2 * time.Second  // Quick operations like health checks
	RelayPublishTimeout   = 5 * time.Second  // Per-event bus publish budget
	MongoConnectTimeout   = 10 * time.Second // Membership store connection
)

// Durations for background operations
const (
	DefaultRateWindow      = 1 * time.Minute // Rate limiting window
	DefaultCleanupInterval = 5 * time.Minute // Rate limiter cleanup goroutine interval
)

// Default Configuration Values
const (
	DefaultPort       = 8080
	DefaultLogLevel   = "info"
	DefaultLogDir     = "logs"
	DefaultPathPrefix = "/chatrelay" // Default HTTP path prefix for all routes
	DefaultRedisDB    = 0
	DefaultMongoURI   = "" // Empty means the static membership resolver is used
	DefaultDatabase   = "chat"
	DefaultMembership = "chat_room_members"
)

// Redis key and channel layout
const (
	RelayChannelPrefix = "chatrelay:user:" // One pub/sub channel per recipient user id
)

// HTTP Headers and query parameters
const (
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer "
	BearerPrefixLength  = 7
	QueryAccessToken    = "access_token"
	QueryTimeout        = "timeout"
)

// Error Messages
const (
	ErrMsgMissingCredential = "Missing authentication credential"
	ErrMsgInvalidToken      = "Invalid or expired token"
	ErrMsgSessionExpired    = "Session expired"
	ErrMsgInternalError     = "Internal server error"
	ErrMsgInvalidTimeout    = "Invalid timeout value"
	ErrMsgInvalidEnvelope   = "Invalid message envelope"
	ErrMsgRoomIDRequired    = "Chat room ID is required"
)

// MongoDB field names (BSON tags) for the membership collection
const (
	MongoFieldID     = "_id"
	MongoFieldRoomID = "roomId"
	MongoFieldUserID = "uid"
)

// Weak secrets rejected during configuration validation
var WeakSecrets = []string{
	"secret", "test", "test123", "password", "admin",
	"changeme", "default", "example", "demo", "12345",
	"placeholder",
}

// Minimum Security Requirements
const (
	MinJWTSecretLength = 32 // Minimum length for JWT secret (256 bits)
)
