// Package chatrelay provides the service registration for the real-time chat
// delivery subsystem. Register wires the WebSocket hub, the SSE and long-poll
// hubs, the cross-instance relay and the message intake endpoint onto a Gin
// router; Shutdown tears the whole assembly down.
package chatrelay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/real-rm/chatrelay/internal/auth"
	"github.com/real-rm/chatrelay/internal/config"
	"github.com/real-rm/chatrelay/internal/constants"
	"github.com/real-rm/chatrelay/internal/dispatch"
	chaterrors "github.com/real-rm/chatrelay/internal/errors"
	"github.com/real-rm/chatrelay/internal/frame"
	"github.com/real-rm/chatrelay/internal/handler"
	"github.com/real-rm/chatrelay/internal/httperrors"
	"github.com/real-rm/chatrelay/internal/longpoll"
	"github.com/real-rm/chatrelay/internal/membership"
	"github.com/real-rm/chatrelay/internal/metrics"
	relaybus "github.com/real-rm/chatrelay/internal/relay"
	"github.com/real-rm/chatrelay/internal/session"
	"github.com/real-rm/chatrelay/internal/sse"
	"github.com/real-rm/chatrelay/internal/util"
	"github.com/real-rm/chatrelay/internal/websocket"
)

// Service holds the wired components for graceful shutdown.
type Service struct {
	hub      *websocket.Hub
	monitor  *session.ExpiryMonitor
	relay    relaybus.Relay
	resolver membership.Resolver
	logger   *zap.Logger
}

// Register registers the chat delivery service on the given router.
// The configuration must already be validated.
func Register(r *gin.Engine, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	serviceLogger := logger.Named("chatrelay")
	serviceLogger.Info("Initializing chat delivery service")

	// No else needed: early return pattern (guard clause)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Cross-instance relay. An empty Redis address selects the in-process
	// relay, which only serves single-instance deployments and tests.
	var relay relaybus.Relay
	if cfg.Relay.RedisAddr != "" {
		connectCtx, connectCancel := util.NewTimeoutContext(constants.ShortTimeout)
		defer connectCancel()
		redisRelay, err := relaybus.NewRedisRelay(connectCtx, &redis.Options{
			Addr:     cfg.Relay.RedisAddr,
			Password: cfg.Relay.RedisPassword,
			DB:       cfg.Relay.RedisDB,
		}, serviceLogger)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis relay: %w", err)
		}
		relay = redisRelay
		serviceLogger.Info("Redis relay configured", zap.String("addr", cfg.Relay.RedisAddr))
	} else {
		relay = relaybus.NewMemoryRelay(serviceLogger)
		serviceLogger.Warn("No Redis address configured, using in-process relay (single instance only)")
	}

	// Membership resolver. An empty Mongo URI selects the static resolver.
	var resolver membership.Resolver
	if cfg.Database.URI != "" {
		connectCtx, connectCancel := util.NewTimeoutContext(cfg.Database.ConnectTimeout)
		defer connectCancel()
		mongoResolver, err := membership.NewMongoResolver(connectCtx, cfg.Database.URI, cfg.Database.Database, cfg.Database.Collection, serviceLogger)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			relay.Close()
			return nil, fmt.Errorf("failed to connect membership store: %w", err)
		}
		resolver = mongoResolver
		serviceLogger.Info("MongoDB membership resolver configured",
			zap.String("database", cfg.Database.Database),
			zap.String("collection", cfg.Database.Collection))
	} else {
		resolver = membership.NewStaticResolver(nil)
		serviceLogger.Warn("No Mongo URI configured, using static membership resolver")
	}

	verifier := auth.NewJWTVerifier(cfg.Server.JWTSecret)
	registry := session.NewRegistry()
	handlers := handler.NewRegistry(serviceLogger)

	hub := websocket.NewHub(verifier, registry, handlers, relay, cfg.Server.MaxFrameSize, cfg.Server.MaxConnsPerUser, cfg.Server.RateLimit, serviceLogger)
	// No else needed: optional operation (origin allowlist only when configured)
	if len(cfg.Server.AllowedOrigins) > 0 {
		hub.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	} else {
		serviceLogger.Warn("No allowed origins configured, allowing all origins (development mode)")
	}

	// No else needed: early return pattern (guard clause)
	if err := hub.RegisterHandlers(); err != nil {
		relay.Close()
		return nil, fmt.Errorf("failed to register frame handlers: %w", err)
	}
	handlers.Freeze()

	sseHub := sse.NewHub(cfg.Delivery.SSETimeout, serviceLogger)
	lpHub := longpoll.NewHub(cfg.Delivery.LongPollTimeout, serviceLogger)
	dispatcher := dispatch.NewDispatcher(resolver, relay, sseHub, lpHub, serviceLogger)

	monitor := session.NewExpiryMonitor(registry, hub, cfg.Delivery.ExpiryInterval, serviceLogger)
	monitor.Start()

	// Security headers and request latency on every route
	r.Use(securityHeadersMiddleware())
	r.Use(metricsMiddleware())

	// No else needed: optional operation (CORS only when origins configured)
	if len(cfg.Server.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
		serviceLogger.Info("CORS middleware configured",
			zap.Strings("allowed_origins", cfg.Server.AllowedOrigins))
	}

	serviceLogger.Info("Using HTTP path prefix", zap.String("prefix", cfg.Server.PathPrefix))

	group := r.Group(cfg.Server.PathPrefix)
	{
		// WebSocket endpoint. A credential in the access_token query
		// parameter is moved to the Authorization header and redacted from
		// the URL so it never appears in access logs.
		group.GET("/ws", func(c *gin.Context) {
			if token := c.Query(constants.QueryAccessToken); token != "" {
				if c.Request.Header.Get(constants.HeaderAuthorization) == "" {
					c.Request.Header.Set(constants.HeaderAuthorization, constants.BearerPrefix+token)
				}
				q := c.Request.URL.Query()
				q.Del(constants.QueryAccessToken)
				c.Request.URL.RawQuery = q.Encode()
			}
			hub.HandleWebSocket(c.Writer, c.Request)
		})

		// Alternate delivery paths for clients without WebSocket support
		group.GET("/sse/chat-rooms/:chatRoomId/messages", userAuthMiddleware(verifier, serviceLogger), sseHub.HandleStream)
		group.GET("/long-polling/chat-rooms/:chatRoomId/messages", userAuthMiddleware(verifier, serviceLogger), lpHub.HandlePoll)

		// Message intake for upstream producers (the message persistence
		// service posts here after a write commits)
		group.POST("/events/message-created",
			serviceAuthMiddleware(cfg.Server.ServiceToken, serviceLogger),
			handleMessageCreated(dispatcher, serviceLogger))

		group.GET("/healthz", handleHealthCheck)
		group.GET("/readyz", handleReadyCheck(relay, resolver, serviceLogger))
		group.GET("/metrics/prometheus", gin.WrapH(promhttp.Handler()))
	}

	serviceLogger.Info("Chat delivery service registered",
		zap.String("websocket_endpoint", cfg.Server.PathPrefix+"/ws"),
		zap.String("intake_endpoint", cfg.Server.PathPrefix+"/events/message-created"),
		zap.String("metrics_endpoint", cfg.Server.PathPrefix+"/metrics/prometheus"))

	return &Service{
		hub:      hub,
		monitor:  monitor,
		relay:    relay,
		resolver: resolver,
		logger:   serviceLogger,
	}, nil
}

// Shutdown gracefully shuts down the service: the expiry sweep stops, live
// WebSocket connections are closed within the context deadline, and the relay
// and membership store are released.
func (s *Service) Shutdown(ctx context.Context) error {
	s.logger.Info("Starting graceful shutdown of chat delivery service")

	s.monitor.Stop()
	s.hub.StopLimiters()

	shutdownErr := s.hub.ShutdownWithContext(ctx)
	// No else needed: optional operation (error logging)
	if shutdownErr != nil {
		s.logger.Warn("WebSocket hub shutdown error", zap.Error(shutdownErr))
	}

	if err := s.relay.Close(); err != nil {
		util.LogError(s.logger, "chatrelay", "close relay", err)
	}

	if closer, ok := s.resolver.(interface{ Close(context.Context) error }); ok {
		if err := closer.Close(ctx); err != nil {
			util.LogError(s.logger, "chatrelay", "close membership store", err)
		}
	}

	s.logger.Info("Chat delivery service shutdown complete")
	return shutdownErr
}

// securityHeadersMiddleware adds standard HTTP security headers to all responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Next()
	}
}

// metricsMiddleware records HTTP request duration for Prometheus monitoring
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.HTTPRequestDuration.With(prometheus.Labels{
			"endpoint": c.FullPath(),
			"method":   c.Request.Method,
		}).Observe(time.Since(start).Seconds())
	}
}

// userAuthMiddleware creates a Gin middleware for token authentication on the
// HTTP delivery paths. The verified principal is stored in the context.
func userAuthMiddleware(verifier auth.TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := auth.CredentialFromRequest(c.Request)
		// No else needed: early return pattern (guard clause)
		if credential == "" {
			httperrors.RespondUnauthorized(c, constants.ErrMsgMissingCredential)
			c.Abort()
			return
		}

		info, err := verifier.Verify(credential)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			// Log detailed error server-side
			logger.Warn("Token verification failed",
				zap.Error(err),
				zap.String("component", "auth"))
			// Send generic error to client
			httperrors.RespondInvalidToken(c)
			c.Abort()
			return
		}

		c.Set("authInfo", *info)
		c.Next()
	}
}

// serviceAuthMiddleware authenticates the upstream producer on the message
// intake endpoint with a shared bearer token. An empty configured token
// disables the check (development mode).
func serviceAuthMiddleware(serviceToken string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if serviceToken == "" {
			c.Next()
			return
		}

		token, err := util.ExtractBearerToken(c.GetHeader(constants.HeaderAuthorization))
		if err != nil || token != serviceToken {
			logger.Warn("Intake request rejected",
				zap.String("remote_addr", c.ClientIP()),
				zap.String("component", "intake"))
			httperrors.RespondUnauthorized(c, constants.ErrMsgMissingCredential)
			c.Abort()
			return
		}

		c.Next()
	}
}

// handleMessageCreated returns the handler for the message intake endpoint.
// The producer's event is validated and fanned out to every delivery path;
// relay publication is asynchronous, so a 202 only means the event was
// accepted for delivery.
func handleMessageCreated(dispatcher *dispatch.Dispatcher, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var env frame.MessageEnvelope
		// No else needed: early return pattern (guard clause)
		if err := c.ShouldBindJSON(&env); err != nil {
			httperrors.RespondBadRequest(c, constants.ErrMsgInvalidEnvelope)
			return
		}
		// No else needed: optional operation (default event timestamp)
		if env.CreatedAt.IsZero() {
			env.CreatedAt = time.Now().UTC()
		}

		if err := dispatcher.MessageCreated(c.Request.Context(), &env); err != nil {
			// Validation failures are the producer's fault; everything
			// else stays server-side
			var deliveryErr *chaterrors.DeliveryError
			if errors.As(err, &deliveryErr) && deliveryErr.Category == chaterrors.CategoryValidation {
				httperrors.RespondBadRequest(c, deliveryErr.Message)
				return
			}
			util.LogError(logger, "intake", "dispatch message-created event", err,
				zap.String("message_id", env.ID))
			httperrors.RespondInternalError(c)
			return
		}

		c.JSON(202, gin.H{
			"status":    "accepted",
			"messageId": env.ID,
		})
	}
}

// handleHealthCheck is the liveness probe endpoint.
func handleHealthCheck(c *gin.Context) {
	// Basic liveness check - if we can respond, we're alive
	c.JSON(200, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReadyCheck returns the readiness probe handler. It verifies the
// relay and the membership store are reachable.
func handleReadyCheck(relay relaybus.Relay, resolver membership.Resolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := make(map[string]interface{})
		allReady := true

		ctx, cancel := util.NewTimeoutContext(constants.ShortTimeout)
		defer cancel()

		// No else needed: optional operation (health check result recording)
		if pinger, ok := relay.(interface{ Ping(context.Context) error }); ok {
			if err := pinger.Ping(ctx); err != nil {
				logger.Warn("Relay health check failed",
					zap.Error(err),
					zap.String("component", "health"))
				checks["relay"] = map[string]interface{}{
					"status": "not ready",
					"reason": "Relay connectivity check failed",
				}
				allReady = false
			} else {
				checks["relay"] = map[string]interface{}{"status": "ready"}
			}
		} else {
			checks["relay"] = map[string]interface{}{"status": "ready"}
		}

		// No else needed: optional operation (health check result recording)
		if pinger, ok := resolver.(interface{ Ping(context.Context) error }); ok {
			if err := pinger.Ping(ctx); err != nil {
				logger.Warn("Membership store health check failed",
					zap.Error(err),
					zap.String("component", "health"))
				checks["membership"] = map[string]interface{}{
					"status": "not ready",
					"reason": "Membership store connectivity check failed",
				}
				allReady = false
			} else {
				checks["membership"] = map[string]interface{}{"status": "ready"}
			}
		} else {
			checks["membership"] = map[string]interface{}{"status": "ready"}
		}

		status := "ready"
		statusCode := 200
		// No else needed: optional operation (status code adjustment based on health)
		if !allReady {
			status = "not ready"
			statusCode = 503
		}

		c.JSON(statusCode, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}
