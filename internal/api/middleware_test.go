package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cav/asset-vault/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func sessionEchoRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware(testSecret))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, getSessionFromContext(c))
	})
	return r
}

func whoami(t *testing.T, r *gin.Engine, mutate func(*http.Request)) domain.Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var sess domain.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	return sess
}

func signToken(t *testing.T, secret string, claims jwtClaims) string {
	t.Helper()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestSessionFromBearerToken(t *testing.T) {
	r := sessionEchoRouter()
	token := signToken(t, testSecret, jwtClaims{
		UserID: "u1",
		Email:  "alice@corp.com",
		Name:   "Alice",
		Role:   domain.RoleAdmin,
		Team:   true,
	})

	sess := whoami(t, r, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})

	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "alice@corp.com", sess.Email)
	assert.Equal(t, domain.RoleAdmin, sess.Role)
	assert.True(t, sess.CanAccessTeam)
}

func TestInvalidTokenFallsThrough(t *testing.T) {
	r := sessionEchoRouter()
	badToken := signToken(t, "wrong-secret", jwtClaims{Email: "alice@corp.com", Role: domain.RoleAdmin})

	// Bad signature plus an SSO header: the chain lands on the header.
	sess := whoami(t, r, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+badToken)
		req.Header.Set(legacySSOHeader, "bob@corp.com")
	})

	assert.Equal(t, "bob@corp.com", sess.Email)
	assert.Equal(t, domain.RoleEditor, sess.Role)
	assert.True(t, sess.CanAccessTeam)
	assert.Empty(t, sess.UserID)
}

func TestSessionFromPersistedEmailCookie(t *testing.T) {
	r := sessionEchoRouter()

	sess := whoami(t, r, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: lastEmailCookie, Value: "carol@corp.com"})
	})

	assert.Equal(t, "carol@corp.com", sess.Email)
	assert.Equal(t, domain.RoleEditor, sess.Role)
	// The cookie pins the partition but never grants team access.
	assert.False(t, sess.CanAccessTeam)
}

func TestAnonymousSession(t *testing.T) {
	r := sessionEchoRouter()

	sess := whoami(t, r, nil)
	assert.Empty(t, sess.Email)
	assert.Equal(t, domain.RoleEditor, sess.Role)
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware(testSecret))
	r.GET("/private", RequireAuth(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := signToken(t, testSecret, jwtClaims{UserID: "u1", Email: "alice@corp.com", Role: domain.RoleEditor})
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRoleMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware(testSecret))
	r.GET("/admin", RoleMiddleware(domain.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	editorToken := signToken(t, testSecret, jwtClaims{UserID: "u1", Email: "ed@corp.com", Role: domain.RoleEditor})
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+editorToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	adminToken := signToken(t, testSecret, jwtClaims{UserID: "u2", Email: "root@corp.com", Role: domain.RoleAdmin})
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
