package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/jarhub/internal/auth"
	"github.com/lgulliver/jarhub/pkg/types"
	"github.com/rs/zerolog/log"
)

const actorKey = "actor"

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

// AuthMiddleware requires a valid bearer token
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if ok {
			actor, err := authenticator.Authenticate(c.Request.Context(), token)
			if err == nil {
				c.Set(actorKey, actor)
				c.Next()
				return
			}
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("bearer token rejected")
		}

		c.JSON(http.StatusUnauthorized, types.APIResponse{
			Success: false,
			Error:   "Authentication required",
			Code:    types.ErrUnauthenticated.Code,
		})
		c.Abort()
	}
}

// OptionalAuthMiddleware allows both authenticated and anonymous access. An
// invalid token is treated as anonymous.
func OptionalAuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if actor, err := authenticator.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(actorKey, actor)
			}
		}
		c.Next()
	}
}

// RequireAction rejects callers whose role does not permit action. It must
// run after AuthMiddleware.
func RequireAction(action auth.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, _ := GetActorFromContext(c)
		if err := auth.Authorize(actor, action); err != nil {
			status := http.StatusForbidden
			message := "Insufficient permissions"
			if actor == nil {
				status = http.StatusUnauthorized
				message = "Authentication required"
			}
			c.JSON(status, types.APIResponse{
				Success: false,
				Error:   message,
				Code:    types.CodeOf(err),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetActorFromContext extracts the authenticated actor from gin context
func GetActorFromContext(c *gin.Context) (*types.Actor, bool) {
	value, exists := c.Get(actorKey)
	if !exists {
		return nil, false
	}
	actor, ok := value.(*types.Actor)
	return actor, ok
}
