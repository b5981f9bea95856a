package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cav/asset-vault/internal/domain"
	"cav/asset-vault/internal/namespace"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Constants for context keys
const (
	ContextSessionKey = "session"
)

// Cookie holding the last authenticated email, the third rung of the
// identity fallback ladder.
const lastEmailCookie = "cav_last_email"

// Legacy SSO header, the second rung.
const legacySSOHeader = "X-CAV-SSO-Email"

// jwtClaims mirrors the payload minted by the auth service.
type jwtClaims struct {
	UserID string      `json:"uid"`
	Email  string      `json:"email"`
	Name   string      `json:"name,omitempty"`
	Role   domain.Role `json:"role"`
	Team   bool        `json:"team"`
	jwt.RegisteredClaims
}

// SessionMiddleware resolves the request identity through the namespacing
// provider chain: validated bearer token, then the legacy SSO header, then
// the persisted last-known email, finally anonymous. It never rejects a
// request; unknown identity just lands in the anonymous partition. Routes
// that demand a real account use RequireAuth on top.
func SessionMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolver := namespace.NewResolver(
			tokenProvider(c, jwtSecret),
			legacySSOProvider(c),
			lastEmailProvider(c),
		)
		c.Set(ContextSessionKey, resolver.Resolve())
		c.Next()
	}
}

// tokenProvider yields the session carried by a valid Bearer token.
func tokenProvider(c *gin.Context, jwtSecret string) namespace.ProviderFunc {
	return func() (domain.Session, error) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			return domain.Session{}, errors.New("no authorization header")
		}

		// Expecting "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return domain.Session{}, errors.New("malformed authorization header")
		}

		claims := &jwtClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid || claims.Email == "" {
			return domain.Session{}, errors.New("invalid token")
		}

		role := claims.Role
		if !domain.ValidRole(role) {
			role = domain.RoleViewer
		}
		return domain.Session{
			UserID:        claims.UserID,
			Email:         claims.Email,
			Name:          claims.Name,
			Role:          role,
			CanAccessTeam: claims.Team,
		}, nil
	}
}

// legacySSOProvider trusts the identity header set by the legacy SSO proxy.
// Header sessions are editor-level and team-capable, matching what the old
// SSO integration granted.
func legacySSOProvider(c *gin.Context) namespace.ProviderFunc {
	return func() (domain.Session, error) {
		email := strings.TrimSpace(c.GetHeader(legacySSOHeader))
		if email == "" {
			return domain.Session{}, errors.New("no sso header")
		}
		return domain.Session{
			Email:         email,
			Role:          domain.RoleEditor,
			CanAccessTeam: true,
		}, nil
	}
}

// lastEmailProvider falls back to the email persisted at the last login.
// It only pins the storage partition; it grants no account privileges
// beyond the anonymous editor baseline and no team access.
func lastEmailProvider(c *gin.Context) namespace.ProviderFunc {
	return func() (domain.Session, error) {
		email, err := c.Cookie(lastEmailCookie)
		if err != nil || email == "" {
			return domain.Session{}, errors.New("no persisted email")
		}
		return domain.Session{
			Email: email,
			Role:  domain.RoleEditor,
		}, nil
	}
}

// RequireAuth gates routes that need a real account (a token-derived user
// id). Must run AFTER SessionMiddleware.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := getSessionFromContext(c)
		if sess.UserID == "" {
			abortWithError(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		c.Next()
	}
}

// RoleMiddleware restricts a route to the given roles. Must run AFTER
// SessionMiddleware.
func RoleMiddleware(allowedRoles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := getSessionFromContext(c)
		for _, role := range allowedRoles {
			if sess.Role == role {
				c.Next()
				return
			}
		}
		abortWithError(c, http.StatusForbidden, "Insufficient permissions")
	}
}

func getSessionFromContext(c *gin.Context) domain.Session {
	raw, exists := c.Get(ContextSessionKey)
	if !exists {
		return domain.Session{Role: domain.RoleViewer}
	}
	sess, ok := raw.(domain.Session)
	if !ok {
		return domain.Session{Role: domain.RoleViewer}
	}
	return sess
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}
