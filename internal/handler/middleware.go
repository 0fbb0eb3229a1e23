package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nuhmanudheent/hosp-connect-hospital/internal/auth"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/domain"
	"github.com/nuhmanudheent/hosp-connect-hospital/internal/ratelimit"
)

const (
	actorKey     = "actor"
	requestIDKey = "request_id"
)

// RequestLogger tags each request with an id and logs it once it completes.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)

		c.Next()

		logger.WithFields(logrus.Fields{
			"RequestID": id,
			"Method":    c.Request.Method,
			"Path":      c.Request.URL.Path,
			"Status":    c.Writer.Status(),
			"Latency":   time.Since(start).String(),
		}).Info("HTTP request")
	}
}

func actorFromHeader(c *gin.Context, tokens *auth.TokenManager) (domain.Actor, bool, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return domain.Actor{}, false, true
	}
	raw, ok := auth.BearerToken(header)
	if !ok {
		return domain.Actor{}, true, false
	}
	actor, err := tokens.Parse(raw)
	if err != nil {
		return domain.Actor{}, true, false
	}
	return actor, true, true
}

func setActor(c *gin.Context, actor domain.Actor) {
	c.Set(actorKey, actor)
	c.Request = c.Request.WithContext(domain.WithActor(c.Request.Context(), actor))
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, present, valid := actorFromHeader(c, tokens)
		if !present {
			SendError(c, http.StatusUnauthorized, CodeMissingToken, "Authentication required",
				"Please provide a valid authorization token in the request header", nil)
			return
		}
		if !valid {
			SendError(c, http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired token",
				"The provided token is invalid, expired, or malformed. Please login again to get a new token", nil)
			return
		}
		setActor(c, actor)
		c.Next()
	}
}

// OptionalAuth attaches the caller when a token is sent but lets anonymous
// requests through. A bad token is still an error.
func OptionalAuth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, present, valid := actorFromHeader(c, tokens)
		if present && !valid {
			SendError(c, http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired token",
				"The provided token is invalid, expired, or malformed. Please login again to get a new token", nil)
			return
		}
		if present {
			setActor(c, actor)
		}
		c.Next()
	}
}

// RequireRole lets only the listed roles through.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentActor(c)
		if !ok || !actor.Is(roles...) {
			SendError(c, http.StatusForbidden, domain.CodePermissionDenied, "Access denied",
				"You don't have permission to perform this action", nil)
			return
		}
		c.Next()
	}
}

// RateLimit counts the request against identity+action. Counter store
// failures are logged and the request is let through.
func RateLimit(limiter ratelimit.Limiter, logger *logrus.Logger, action string, identity func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := identity(c)
		allowed, err := limiter.Allow(c.Request.Context(), key, action)
		if err != nil {
			logger.WithFields(logrus.Fields{
				"Function": "RateLimit",
				"Action":   action,
				"Error":    err,
			}).Warn("Rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			sendDomainError(c, logger, domain.ErrRateLimited.WithDetail("action", action))
			return
		}
		c.Next()
	}
}

func currentActor(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	actor, ok := v.(domain.Actor)
	return actor, ok
}

// byActorOrIP keys limits on the authenticated user, else the client address.
func byActorOrIP(c *gin.Context) string {
	if actor, ok := currentActor(c); ok {
		return "user:" + uintString(actor.UserID)
	}
	return "ip:" + c.ClientIP()
}
