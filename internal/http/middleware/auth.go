package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/exampaper-backend/internal/http/response"
	"github.com/yungbote/exampaper-backend/internal/platform/apierr"
	"github.com/yungbote/exampaper-backend/internal/platform/auth"
	"github.com/yungbote/exampaper-backend/internal/platform/ctxutil"
	"github.com/yungbote/exampaper-backend/internal/platform/logger"
)

type AuthMiddleware struct {
	log      *logger.Logger
	verifier auth.Verifier
}

func NewAuthMiddleware(log *logger.Logger, verifier auth.Verifier) *AuthMiddleware {
	middlewareLogger := log.With("Middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLogger, verifier: verifier}
}

// RequireAuth resolves the bearer token to a caller and admits only admin and
// faculty roles.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, apierr.KindUnauthorized, "missing or invalid token")
			return
		}
		ctx, err := am.verifier.SetContextFromToken(c.Request.Context(), tokenString)
		if err != nil {
			abort(c, http.StatusUnauthorized, apierr.KindUnauthorized, err.Error())
			return
		}
		c.Request = c.Request.WithContext(ctx)
		caller := ctxutil.CallerFrom(ctx)
		if !caller.Valid() {
			am.log.Debug("Caller role rejected", "role", caller.Role)
			abort(c, http.StatusForbidden, apierr.KindForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, kind apierr.Kind, msg string) {
	c.AbortWithStatusJSON(status, response.ErrorEnvelope{
		Error: response.APIError{Message: msg, Code: string(kind)},
	})
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
