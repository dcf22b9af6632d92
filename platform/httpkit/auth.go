package httpkit

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"claims_backend/platform/config"
	"claims_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	errMissingToken = "missing token"
	errInvalidToken = "invalid token"

	accessTokenType = "access"
	bearerPrefix    = "Bearer "
)

var errNotAccessToken = errors.New("token is not an access token")

// accessClaims is the payload of tokens issued by the identity service.
type accessClaims struct {
	Type  string   `json:"type"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// AuthRequired validates the HS256 access token and stores the caller on the
// gin context. Event streams cannot set headers, so ?token= is accepted too.
func AuthRequired(cfg config.JWTConfig) gin.HandlerFunc {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	secret := func(*jwt.Token) (any, error) { return []byte(cfg.GetJWTAccessSecret()), nil }

	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			abortUnauthorized(c, errMissingToken)
			return
		}

		userID, roles, err := verifyAccessToken(parser, secret, raw)
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		SetIdentity(c, userID, roles)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.UserIDKey, userID.String()))
		c.Next()
	}
}

// RequireAnyRole admits callers holding at least one of roles.
func RequireAnyRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		switch {
		case !id.IsAuthenticated():
			abortUnauthorized(c, errMissingToken)
		case !id.HasAnyRole(roles...):
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Code: "FORBIDDEN"})
		default:
			c.Next()
		}
	}
}

func verifyAccessToken(parser *jwt.Parser, secret jwt.Keyfunc, raw string) (uuid.UUID, []string, error) {
	var claims accessClaims
	if _, err := parser.ParseWithClaims(raw, &claims, secret); err != nil {
		return uuid.Nil, nil, err
	}
	if claims.Type != accessTokenType {
		return uuid.Nil, nil, errNotAccessToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, err
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	return userID, claims.Roles, nil
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: message, Code: "UNAUTHORIZED"})
}
