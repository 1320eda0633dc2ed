package middleware

import (
	"net/http"
	"strings"

	"adspace/internal/shared/actor"
	"adspace/internal/shared/config"
	"adspace/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "user_role"
	ContextEmail  = "user_email"
)

// JWTAuth verifies bearer access tokens issued by the identity service.
func JWTAuth(cfg *config.Config) gin.HandlerFunc {
	return jwtAuth(cfg, false)
}

// JWTAuthAllowQuery also accepts ?access_token= for websocket upgrades, where
// browsers cannot set headers.
func JWTAuthAllowQuery(cfg *config.Config) gin.HandlerFunc {
	return jwtAuth(cfg, true)
}

func jwtAuth(cfg *config.Config, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, msg := bearerToken(c)
		if tokenString == "" && allowQuery {
			tokenString = c.Query("access_token")
		}
		if tokenString == "" {
			if msg == "" {
				msg = "Authorization header is required"
			}
			LoggerFrom(c).LogAuthFailure(c.Request.Context(), msg, c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, msg, nil, nil)
			c.Abort()
			return
		}

		claims, err := parseAccessToken(tokenString, cfg.JWT.Secret)
		if err != nil {
			LoggerFrom(c).LogAuthFailure(c.Request.Context(), err.Error(), c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, err.Error(), nil, nil)
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims["user_id"])
		c.Set(ContextEmail, claims["email"])
		c.Set(ContextRole, claims["role"])

		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "authorization header format must be Bearer {token}"
	}
	return parts[1], ""
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

func parseAccessToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, tokenError("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, tokenError("invalid token claims")
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, tokenError("invalid token type")
	}
	return claims, nil
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextRole)
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		for _, r := range requiredRoles {
			if role == r {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// RequireAdmin middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(actor.RoleAdmin)
}

// ActorFromContext builds the acting identity set by JWTAuth.
func ActorFromContext(c *gin.Context) (actor.Actor, bool) {
	rawID, ok := c.Get(ContextUserID)
	if !ok {
		return actor.Actor{}, false
	}
	idStr, ok := rawID.(string)
	if !ok {
		return actor.Actor{}, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return actor.Actor{}, false
	}
	rawRole, _ := c.Get(ContextRole)
	role, _ := rawRole.(string)

	a, err := actor.FromRole(role, id)
	if err != nil {
		return actor.Actor{}, false
	}
	return a, true
}

// MustActor aborts with 401 when the request has no usable identity.
func MustActor(c *gin.Context) (actor.Actor, bool) {
	a, ok := ActorFromContext(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		c.Abort()
	}
	return a, ok
}

// ActorAndParam resolves the caller and parses the named path parameter as a
// UUID, answering the request itself when either is missing.
func ActorAndParam(c *gin.Context, name string) (actor.Actor, uuid.UUID, bool) {
	a, ok := MustActor(c)
	if !ok {
		return a, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "Invalid ID", err)
		return a, uuid.Nil, false
	}
	return a, id, true
}
