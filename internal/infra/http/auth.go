package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"credanchor/internal/domain"
	"credanchor/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

const principalContextKey = "principal"

// protected guards record administration according to AUTH_MODE.
func (s *Server) protected() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.requireAdmin(c); !ok {
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) requireAdmin(c *gin.Context) (domain.Principal, bool) {
	if s.authInitErr != nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return domain.Principal{}, false
	}
	switch s.cfg.AuthMode {
	case "none":
		return domain.Principal{}, true
	case "admin_key":
		if principal, ok := s.adminKeyPrincipal(c); ok {
			c.Set(principalContextKey, principal)
			return principal, true
		}
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return domain.Principal{}, false
	}

	if principal, ok := s.adminKeyPrincipal(c); ok {
		c.Set(principalContextKey, principal)
		return principal, true
	}
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || s.authenticator == nil {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return domain.Principal{}, false
	}
	principal, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
		return domain.Principal{}, false
	}
	if s.authorizer != nil {
		if err := s.authorizer.RequireAdmin(principal); err != nil {
			writeAuthzError(c, err)
			return domain.Principal{}, false
		}
	}
	c.Set(principalContextKey, principal)
	return principal, true
}

func (s *Server) adminKeyPrincipal(c *gin.Context) (domain.Principal, bool) {
	if s.adminAPIKey == "" {
		return domain.Principal{}, false
	}
	key := strings.TrimSpace(c.GetHeader("X-Admin-Key"))
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		return domain.Principal{}, false
	}
	return domain.Principal{Subject: "admin-key", Roles: []string{rbac.DefaultAdminRole}}, true
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) < len("bearer ") || !strings.EqualFold(value[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}

func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	raw, ok := c.Get(principalContextKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := raw.(domain.Principal)
	return principal, ok
}

func writeAuthzError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrUnauthorized) {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}
	writeErrorCode(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
}
